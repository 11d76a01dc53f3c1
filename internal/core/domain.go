package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DateLayout is the wire and storage format of payment dates.
	DateLayout = "2006-01-02"

	MaxNameLength = 255
)

type (
	Date struct {
		time.Time
	}

	Project struct {
		ID        int    `json:"id"`
		Name      string `json:"name"`
		IsDeleted bool   `json:"is_deleted"`
	}

	// ProjectDetail is a live project together with its paygroups.
	ProjectDetail struct {
		ID        int        `json:"id"`
		Name      string     `json:"name"`
		Paygroups []Paygroup `json:"paygroups"`
	}

	Paygroup struct {
		ID       int       `json:"id"`
		Name     string    `json:"name"`
		Payments []Payment `json:"payments"`
	}

	// PaymentInput is the client-supplied part of a payment.
	PaymentInput struct {
		Name      string     `json:"name"`
		Date      Date       `json:"date"`
		Asset     Microcents `json:"asset"`
		Liability Microcents `json:"liability"`
		Currency  string     `json:"currency"`
	}

	Payment struct {
		ID         int        `json:"id"`
		Name       string     `json:"name"`
		Date       Date       `json:"date"`
		Asset      Microcents `json:"asset"`
		Liability  Microcents `json:"liability"`
		Currency   string     `json:"currency"`
		Attachment string     `json:"attachment"`
	}
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrTooLarge         = errors.New("payload too large")

	ErrEmptyName       = fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	ErrNameTooLong     = fmt.Errorf("%w: name too long (max %d characters)", ErrInvalidInput, MaxNameLength)
	ErrZeroAmounts     = fmt.Errorf("%w: asset or liability must be non-zero", ErrInvalidInput)
	ErrNegativeAmount  = fmt.Errorf("%w: amounts must not be negative", ErrInvalidInput)
	ErrInvalidDate     = fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	ErrInvalidCurrency = fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidInput)
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Payment builds the stored payment for this input.
func (in PaymentInput) Payment(id int) Payment {
	return Payment{
		ID:        id,
		Name:      in.Name,
		Date:      in.Date,
		Asset:     in.Asset,
		Liability: in.Liability,
		Currency:  in.Currency,
	}
}

// Input returns the client-supplied fields of a stored payment.
func (p Payment) Input() PaymentInput {
	return PaymentInput{
		Name:      p.Name,
		Date:      p.Date,
		Asset:     p.Asset,
		Liability: p.Liability,
		Currency:  p.Currency,
	}
}

// ValidateName checks a project or paygroup name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func (in PaymentInput) Validate() error {
	if err := ValidateName(in.Name); err != nil {
		return err
	}
	if in.Date.IsZero() {
		return ErrInvalidDate
	}
	if in.Asset < 0 || in.Liability < 0 {
		return ErrNegativeAmount
	}
	if in.Asset == 0 && in.Liability == 0 {
		return ErrZeroAmounts
	}
	if !isCurrencyCode(in.Currency) {
		return ErrInvalidCurrency
	}
	return nil
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}

// PaymentIndex returns the position of the payment with the given id, or -1.
func (g Paygroup) PaymentIndex(id int) int {
	for i, p := range g.Payments {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// PaymentIDs lists the ids of the group's payments in order.
func (g Paygroup) PaymentIDs() []int {
	ids := make([]int, len(g.Payments))
	for i, p := range g.Payments {
		ids[i] = p.ID
	}
	return ids
}

// NextID returns max(ids)+1, or 1 when ids is empty. Ids freed by deletion
// are never backfilled, but the highest id is reused once it is gone.
func NextID(ids []int) int {
	next := 1
	for _, id := range ids {
		if id >= next {
			next = id + 1
		}
	}
	return next
}
