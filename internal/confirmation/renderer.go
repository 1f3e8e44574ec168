// Package confirmation renders the customer-facing order confirmation.
// Rendering is pure: the same order and items always yield identical output.
package confirmation

import (
	"bytes"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"restaurantOrdering/models"

	"github.com/shopspring/decimal"
)

// ErrRendering is matched by every *RenderError.
var ErrRendering = errors.New("confirmation rendering failed")

// RenderError reports which input made the document impossible to build.
type RenderError struct {
	Field  string
	Reason string
	Err    error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render confirmation: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("render confirmation: %s: %s", e.Field, e.Reason)
}

func (e *RenderError) Unwrap() error { return e.Err }

func (e *RenderError) Is(target error) bool { return target == ErrRendering }

const timeLayout = "Mon Jan 2, 2006 at 3:04 PM MST"

// Renderer builds confirmation documents.
type Renderer struct {
	RestaurantName string
	Loc            *time.Location

	html *htmltemplate.Template
	text *texttemplate.Template
}

// NewRenderer parses the templates once. loc controls how the estimated time is shown.
func NewRenderer(restaurantName string, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	if strings.TrimSpace(restaurantName) == "" {
		restaurantName = "Our Kitchen"
	}
	funcs := map[string]any{"money": money}
	return &Renderer{
		RestaurantName: restaurantName,
		Loc:            loc,
		html:           htmltemplate.Must(htmltemplate.New("html").Funcs(funcs).Parse(htmlBody)),
		text:           texttemplate.Must(texttemplate.New("text").Funcs(funcs).Parse(textBody)),
	}
}

type line struct {
	Name           string
	Quantity       int
	UnitPrice      decimal.Decimal
	LineTotal      decimal.Decimal
	Instructions   string
	Customizations []string
}

type view struct {
	Restaurant           string
	Number               string
	CustomerName         string
	IsDelivery           bool
	DeliveryAddress      string
	DeliveryInstructions string
	SpecialInstructions  string
	Lines                []line
	Subtotal             decimal.Decimal
	DeliveryFee          decimal.Decimal
	Total                decimal.Decimal
	Estimated            string
}

// Render produces the subject, HTML and plain-text bodies for order.
func (r *Renderer) Render(order *models.Order, items []models.OrderItem) (models.ConfirmationDocument, error) {
	if order == nil {
		return models.ConfirmationDocument{}, &RenderError{Field: "order", Reason: "missing"}
	}
	if strings.TrimSpace(order.Number) == "" {
		return models.ConfirmationDocument{}, &RenderError{Field: "order_number", Reason: "missing"}
	}
	if strings.TrimSpace(order.CustomerEmail) == "" {
		return models.ConfirmationDocument{}, &RenderError{Field: "customer_email", Reason: "missing"}
	}
	if len(items) == 0 {
		return models.ConfirmationDocument{}, &RenderError{Field: "items", Reason: "empty"}
	}

	v := view{
		Restaurant:          r.RestaurantName,
		Number:              order.Number,
		CustomerName:        order.CustomerName,
		IsDelivery:          order.Type == models.OrderTypeDelivery,
		SpecialInstructions: deref(order.SpecialInstructions),
		Subtotal:            order.Subtotal,
		DeliveryFee:         order.DeliveryFee,
		Total:               order.TotalAmount,
		Estimated:           order.EstimatedTime.In(r.Loc).Format(timeLayout),
	}
	if v.IsDelivery {
		v.DeliveryAddress = deref(order.DeliveryAddress)
		v.DeliveryInstructions = deref(order.DeliveryInstructions)
	}
	for i := range items {
		it := &items[i]
		name := it.ProductName
		if name == "" {
			name = fmt.Sprintf("Item #%d", it.ProductID)
		}
		l := line{
			Name:         name,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			LineTotal:    it.LineTotal(),
			Instructions: deref(it.SpecialInstructions),
		}
		for _, c := range it.Customizations {
			label := c.Name
			if c.Option != "" {
				label += ": " + c.Option
			}
			if c.Price.IsPositive() {
				label += " (+" + money(c.Price) + ")"
			}
			l.Customizations = append(l.Customizations, label)
		}
		v.Lines = append(v.Lines, l)
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := r.html.Execute(&htmlBuf, v); err != nil {
		return models.ConfirmationDocument{}, &RenderError{Field: "html", Reason: "template", Err: err}
	}
	if err := r.text.Execute(&textBuf, v); err != nil {
		return models.ConfirmationDocument{}, &RenderError{Field: "text", Reason: "template", Err: err}
	}
	return models.ConfirmationDocument{
		Subject: fmt.Sprintf("%s order confirmation %s", r.RestaurantName, order.Number),
		HTML:    htmlBuf.String(),
		Text:    textBuf.String(),
	}, nil
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}
