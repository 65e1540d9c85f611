package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/threedeality/storefront-api/internal/commerce"
	"github.com/threedeality/storefront-api/internal/money"
)

// OrderConfirmation renders the post-checkout email for an order.
func OrderConfirmation(order commerce.Order) (subject, body string) {
	ref := order.ID
	if order.DisplayID != 0 {
		ref = fmt.Sprintf("#%d", order.DisplayID)
	}
	subject = fmt.Sprintf("Order %s confirmed", ref)

	var b strings.Builder
	b.WriteString("<h2>Thanks for your order!</h2>")
	fmt.Fprintf(&b, "<p>Order %s has been received and is moving to production.</p>", html.EscapeString(ref))
	b.WriteString("<ul>")
	for _, item := range order.Items {
		fmt.Fprintf(&b, "<li>%d × %s — %s</li>",
			item.Quantity,
			html.EscapeString(item.Title),
			money.FormatINR(money.PaiseToRupees(item.UnitPrice)))
	}
	b.WriteString("</ul>")
	fmt.Fprintf(&b, "<p><strong>Total: %s</strong></p>", money.FormatINR(money.PaiseToRupees(order.Total)))
	return subject, b.String()
}

// ContactMessage renders the shop-inbox notification for a contact form
// submission.
func ContactMessage(name, email, phone, message string) (subject, body string) {
	subject = fmt.Sprintf("Contact form: %s", name)
	var b strings.Builder
	fmt.Fprintf(&b, "<p><strong>From:</strong> %s &lt;%s&gt;</p>", html.EscapeString(name), html.EscapeString(email))
	if strings.TrimSpace(phone) != "" {
		fmt.Fprintf(&b, "<p><strong>Phone:</strong> %s</p>", html.EscapeString(phone))
	}
	fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(message))
	return subject, b.String()
}
