package confirmation

const htmlBody = `<!DOCTYPE html>
<html>
<body>
<h1>Thanks for your order, {{.CustomerName}}!</h1>
<p>Order number: <strong>{{.Number}}</strong></p>
<table>
<thead><tr><th>Item</th><th>Qty</th><th>Price</th><th>Total</th></tr></thead>
<tbody>
{{- range .Lines}}
<tr><td>{{.Name}}{{range .Customizations}}<br><small>{{.}}</small>{{end}}{{if .Instructions}}<br><em>{{.Instructions}}</em>{{end}}</td><td>{{.Quantity}}</td><td>{{money .UnitPrice}}</td><td>{{money .LineTotal}}</td></tr>
{{- end}}
</tbody>
</table>
<p>Subtotal: {{money .Subtotal}}</p>
<p>Delivery fee: {{money .DeliveryFee}}</p>
<p><strong>Total: {{money .Total}}</strong></p>
<p>Estimated {{if .IsDelivery}}delivery{{else}}pickup{{end}} time: {{.Estimated}}</p>
{{- if .IsDelivery}}
<p>Delivering to: {{.DeliveryAddress}}</p>
{{- if .DeliveryInstructions}}
<p>Delivery instructions: {{.DeliveryInstructions}}</p>
{{- end}}
{{- end}}
{{- if .SpecialInstructions}}
<p>Special instructions: {{.SpecialInstructions}}</p>
{{- end}}
<p>{{.Restaurant}}</p>
</body>
</html>
`

const textBody = `Thanks for your order, {{.CustomerName}}!

Order number: {{.Number}}

{{range .Lines -}}
{{.Quantity}} x {{.Name}} @ {{money .UnitPrice}} = {{money .LineTotal}}
{{range .Customizations}}    - {{.}}
{{end}}{{if .Instructions}}    Note: {{.Instructions}}
{{end}}{{end}}
Subtotal: {{money .Subtotal}}
Delivery fee: {{money .DeliveryFee}}
Total: {{money .Total}}

Estimated {{if .IsDelivery}}delivery{{else}}pickup{{end}} time: {{.Estimated}}
{{- if .IsDelivery}}
Delivering to: {{.DeliveryAddress}}
{{- if .DeliveryInstructions}}
Delivery instructions: {{.DeliveryInstructions}}
{{- end}}
{{- end}}
{{- if .SpecialInstructions}}
Special instructions: {{.SpecialInstructions}}
{{- end}}

{{.Restaurant}}
`
