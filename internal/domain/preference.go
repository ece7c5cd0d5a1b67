package domain

// Category groups notifications a user can opt out of.
type Category string

const (
	CategorySystem    Category = "system"
	CategoryMarketing Category = "marketing"
	CategoryActivity  Category = "activity"
)

func (c Category) String() string { return string(c) }

// DeliveryPreference is a per-user opt-in flag. A missing row means opted in.
type DeliveryPreference struct {
	UserID   string
	Category Category
	Enabled  bool
}
