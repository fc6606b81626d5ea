package notify

import (
	"html/template"
	"strings"
	"time"
)

// Confirmation email body. The cash and online variants differ only in the
// status banner.
var emailTmpl = template.Must(template.New("order-confirmation").Funcs(template.FuncMap{
	"mul": func(price int64, qty int) int64 { return price * int64(qty) },
}).Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Order Confirmation - Komugi by Narumi</title>
  </head>
  <body style="margin: 0; padding: 0; font-family: Arial, sans-serif; background-color: #f9fafb;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
      <h1 style="color: #92400e;">Order Confirmation</h1>
      <p>Dear {{.Name}},</p>
      <p>Thank you for ordering from <strong>Komugi by Narumi</strong>! We're excited to prepare your delicious baked goods.</p>
      <p style="font-weight: 600; color: #92400e;">Order ID: <span style="font-family: monospace;">{{.OrderToken}}</span></p>
      <h2 style="color: #92400e;">Order Details</h2>
      <table style="width: 100%; border-collapse: collapse;">
        <thead>
          <tr style="background-color: #fef3c7;">
            <th style="padding: 12px; text-align: left;">Item</th>
            <th style="padding: 12px; text-align: center;">Qty</th>
            <th style="padding: 12px; text-align: right;">Price</th>
            <th style="padding: 12px; text-align: right;">Total</th>
          </tr>
        </thead>
        <tbody>
          {{- range .Items}}
          <tr>
            <td style="padding: 12px; border-bottom: 1px solid #e5e7eb;">{{.Name}}</td>
            <td style="padding: 12px; border-bottom: 1px solid #e5e7eb; text-align: center;">{{.Quantity}}</td>
            <td style="padding: 12px; border-bottom: 1px solid #e5e7eb; text-align: right;">{{.Price}} PKR</td>
            <td style="padding: 12px; border-bottom: 1px solid #e5e7eb; text-align: right;">{{mul .Price .Quantity}} PKR</td>
          </tr>
          {{- end}}
        </tbody>
        <tfoot>
          <tr style="background-color: #fffbeb;">
            <td colspan="3" style="padding: 15px; text-align: right; font-weight: 700;">Total Amount:</td>
            <td style="padding: 15px; text-align: right; font-weight: 700;">{{.TotalAmount}} PKR</td>
          </tr>
        </tfoot>
      </table>
      <h2 style="color: #92400e;">Delivery Information</h2>
      <p><strong>Name:</strong> {{.Name}}<br>
      <strong>Email:</strong> {{.Email}}<br>
      <strong>Phone:</strong> {{.Phone}}<br>
      <strong>Delivery Address:</strong> {{.Address}}<br>
      <strong>Payment Method:</strong> {{if eq .PaymentMethod "cash"}}Cash on Delivery{{else}}Online Payment{{end}}</p>
      {{- if eq .PaymentMethod "online"}}
      <p style="color: #1e40af; font-weight: 600;">Payment Pending</p>
      <p>We have received your payment proof and will verify it shortly.</p>
      {{- else}}
      <p style="color: #065f46; font-weight: 600;">Order Confirmed</p>
      <p>Your order has been confirmed. We'll contact you soon to arrange delivery.</p>
      {{- end}}
      <p>Best regards,<br><strong style="color: #92400e;">Komugi by Narumi Team</strong></p>
      <p style="color: #6b7280; font-size: 12px;">This is an automated email. Please do not reply directly to this message.<br>
      &copy; {{.Year}} Komugi by Narumi. All rights reserved.</p>
    </div>
  </body>
</html>
`))

type emailData struct {
	OrderSummary
	Year int
}

func renderEmail(summary OrderSummary) (string, error) {
	var b strings.Builder
	data := emailData{OrderSummary: summary, Year: time.Now().Year()}
	if err := emailTmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
