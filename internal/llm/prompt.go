package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/revfinder/internal/model"
)

const systemPrompt = `You are a Brazilian tax auditor specialized in PIS/COFINS single-phase taxation (regime monofásico).
Decide whether a product sold by a retailer falls under the single-phase regime, in which case the retailer's PIS/COFINS was already paid by the manufacturer.
Answer only with a JSON object. No prose, no markdown.`

// buildPrompt renders the user message for one product.
func buildPrompt(req model.ClassifyRequest) string {
	var details strings.Builder
	fmt.Fprintf(&details, "Product description: %s\n", req.Description)
	if code := strings.TrimSpace(req.Code); code != "" {
		fmt.Fprintf(&details, "NCM printed on the invoice: %s\n", code)
	} else {
		details.WriteString("NCM printed on the invoice: (none)\n")
	}
	if !req.TotalValue.IsZero() {
		fmt.Fprintf(&details, "Line total: R$ %s\n", req.TotalValue.StringFixed(2))
	}

	hints := "(none)"
	if len(req.Hints) > 0 {
		hints = strings.Join(req.Hints, ", ")
	}

	return fmt.Sprintf(`Classify this invoice item.

%s
Known single-phase categories: %s

Reference NCM codes:
- beer: 2203.00.00
- soft drinks: 2202.10.00
- mineral water: 2201.10.00
- energy and isotonic drinks: 2202.99.00 / 2106.90.10

Rules:
1. Wine, spirits and other non-beer alcoholic drinks are NOT single-phase.
2. Food that only shares a word with a drink is NOT single-phase (e.g. "BATATA", "FRANGO REFRIGERADO").
3. Cleaning products are NOT single-phase even when their name contains "AGUA".
4. If the printed NCM is wrong, return the correct 8-digit NCM.

Respond with exactly:
{"single_phase": true or false, "ncm": "8 digit NCM or empty", "reason": "short explanation in Portuguese"}`,
		details.String(), hints)
}
