package advisor

import (
	"fmt"
	"strings"

	"github.com/ecomsimply/repricer/internal/storage"
)

const systemPrompt = `You are a pricing analyst for an Amazon seller.
Summarize the repricing activity you are given in at most five short
sentences: overall direction of price moves, Buy Box situation, anything
that needs the seller's attention. Plain language, no markdown.`

func BuildUserPrompt(entries []storage.PricingHistory) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Repricing decisions (%d):\n", len(entries)))

	for _, e := range entries {
		old := "n/a"
		if e.OldPrice != nil {
			old = fmt.Sprintf("%.2f", *e.OldPrice)
		}
		published := "not published"
		if e.PublicationSuccess {
			published = "published"
		}
		sb.WriteString(fmt.Sprintf("- %s: %s -> %.2f (%+.1f%%), buy box %s, confidence %.0f, %s\n",
			e.SKU, old, e.NewPrice, e.PriceChangePct, e.BuyBoxStatusBefore, e.Confidence, published))
	}

	return sb.String()
}
