package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"restaurantOrdering/models"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ItemRequest is one requested line item.
type ItemRequest struct {
	ProductID           int64                  `json:"product_id" validate:"required,gt=0"`
	Quantity            int                    `json:"quantity" validate:"required,gt=0,lte=100"`
	UnitPrice           decimal.Decimal        `json:"unit_price"`
	SpecialInstructions *string                `json:"special_instructions,omitempty" validate:"omitempty,max=500"`
	Customizations      []models.Customization `json:"customizations,omitempty"`
}

// OrderRequest is the payload accepted by Submit.
type OrderRequest struct {
	CustomerName         string           `json:"customer_name" validate:"required,max=100"`
	CustomerEmail        string           `json:"customer_email" validate:"required,email"`
	CustomerPhone        string           `json:"customer_phone,omitempty" validate:"omitempty,max=32"`
	OrderType            models.OrderType `json:"order_type" validate:"required,oneof=pickup delivery"`
	DeliveryAddress      *string          `json:"delivery_address,omitempty" validate:"omitempty,max=300"`
	DeliveryInstructions *string          `json:"delivery_instructions,omitempty" validate:"omitempty,max=500"`
	SpecialInstructions  *string          `json:"special_instructions,omitempty" validate:"omitempty,max=500"`
	Subtotal             decimal.Decimal  `json:"subtotal"`
	DeliveryFee          decimal.Decimal  `json:"delivery_fee"`
	Total                decimal.Decimal  `json:"total"`
	// EstimatedTime is optional; when zero the configured lead time is added to now.
	EstimatedTime time.Time     `json:"estimated_time,omitempty"`
	Items         []ItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
}

// newValidator returns a validator with the order struct-level rules registered.
func newValidator() *validatorv10.Validate {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(orderStructValidation, OrderRequest{})
	v.RegisterStructValidation(itemStructValidation, ItemRequest{})
	return v
}

// orderStructValidation enforces subtotal + delivery_fee == total exactly and
// the delivery address rule.
func orderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(OrderRequest)

	for _, m := range []struct {
		name string
		val  decimal.Decimal
	}{{"subtotal", req.Subtotal}, {"delivery_fee", req.DeliveryFee}, {"total", req.Total}} {
		if m.val.IsNegative() {
			sl.ReportError(m.val, m.name, m.name, "nonnegative", "")
		}
		if !wholeCents(m.val) {
			sl.ReportError(m.val, m.name, m.name, "cents", "")
		}
	}
	if sum := req.Subtotal.Add(req.DeliveryFee); !sum.Equal(req.Total) {
		sl.ReportError(req.Total, "total", "Total", "total_matches", sum.StringFixed(2))
	}
	if req.OrderType == models.OrderTypeDelivery && (req.DeliveryAddress == nil || strings.TrimSpace(*req.DeliveryAddress) == "") {
		sl.ReportError(req.DeliveryAddress, "delivery_address", "DeliveryAddress", "required_for_delivery", "")
	}
}

func itemStructValidation(sl validatorv10.StructLevel) {
	it := sl.Current().Interface().(ItemRequest)
	if it.UnitPrice.IsNegative() {
		sl.ReportError(it.UnitPrice, "unit_price", "UnitPrice", "nonnegative", "")
	}
	if !wholeCents(it.UnitPrice) {
		sl.ReportError(it.UnitPrice, "unit_price", "UnitPrice", "cents", "")
	}
	for _, c := range it.Customizations {
		if strings.TrimSpace(c.Name) == "" {
			sl.ReportError(it.Customizations, "customizations", "Customizations", "named", "")
			break
		}
	}
}

// wholeCents reports whether d has at most two decimal places. Stored amounts
// are fixed at two places, so anything finer would be rounded on write.
func wholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}

// describe flattens validator errors into one caller-facing reason.
func describe(err error) string {
	var verrs validatorv10.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		parts = append(parts, field+" "+message(fe))
	}
	return strings.Join(parts, "; ")
}

func message(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must have at least " + fe.Param()
	case "nonnegative":
		return "must not be negative"
	case "cents":
		return "must have at most two decimal places"
	case "total_matches":
		return "must equal subtotal + delivery_fee (" + fe.Param() + ")"
	case "required_for_delivery":
		return "is required for delivery orders"
	case "named":
		return "entries need a name"
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}
