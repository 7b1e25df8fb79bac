package services

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"car-sniper/models"
)

// WizardStep is the state of one subscriber's filter setup dialog.
type WizardStep int

const (
	StepNone WizardStep = iota
	AwaitingPrice
	AwaitingYear
	AwaitingMileage
	AwaitingBrands
)

func (s WizardStep) String() string {
	switch s {
	case AwaitingPrice:
		return "awaiting_price"
	case AwaitingYear:
		return "awaiting_year"
	case AwaitingMileage:
		return "awaiting_mileage"
	case AwaitingBrands:
		return "awaiting_brands"
	default:
		return "none"
	}
}

const (
	PromptPrice   = "Enter a price range in €, e.g. 2000-6000 (open ends like 5000- work, - to skip)"
	PromptYear    = "Enter a model year range, e.g. 2006-2020 (- to skip)"
	PromptMileage = "Enter the maximum mileage in km, e.g. 250000 (- to skip)"
	PromptBrands  = "Pick brands (several allowed), then press Save. Saving with none selected means any brand."
)

var (
	errBadRange   = errors.New("expected a range like 2000-6000, an open range like 5000- or - to skip")
	errBadYear    = errors.New("years must be four digits, e.g. 2006-2020")
	errBadMileage = errors.New("expected a whole number of kilometres, e.g. 250000, or - to skip")
)

// WizardReply is what the transport should show after an input.
type WizardReply struct {
	Text       string
	ShowBrands bool
}

type wizardSession struct {
	step    WizardStep
	spec    models.FilterSpec
	brands  []string
	touched time.Time
}

// Wizard drives the step-by-step filter setup. Sessions live in memory only
// and are dropped on save, cancel or after ttl of inactivity.
type Wizard struct {
	mu       sync.Mutex
	sessions map[int64]*wizardSession
	ttl      time.Duration
	now      func() time.Time
}

func NewWizard(ttl time.Duration) *Wizard {
	return &Wizard{
		sessions: make(map[int64]*wizardSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Start opens (or restarts) a dialog and returns the first prompt.
func (w *Wizard) Start(subscriberID int64) WizardReply {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessions[subscriberID] = &wizardSession{step: AwaitingPrice, touched: w.now()}
	return WizardReply{Text: PromptPrice}
}

// Step returns the current state, StepNone when no live dialog exists.
func (w *Wizard) Step(subscriberID int64) WizardStep {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s := w.session(subscriberID); s != nil {
		return s.step
	}
	return StepNone
}

// HandleText feeds a free-text answer into the dialog. ok is false when the
// subscriber has no live dialog expecting text.
func (w *Wizard) HandleText(subscriberID int64, text string) (reply WizardReply, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.session(subscriberID)
	if s == nil || s.step == AwaitingBrands {
		return WizardReply{}, false
	}
	s.touched = w.now()

	switch s.step {
	case AwaitingPrice:
		min, max, err := parseRangeInput(text, false)
		if err != nil {
			return WizardReply{Text: "⚠️ " + err.Error()}, true
		}
		s.spec.PriceMin, s.spec.PriceMax = min, max
		s.step = AwaitingYear
		return WizardReply{Text: PromptYear}, true

	case AwaitingYear:
		min, max, err := parseRangeInput(text, true)
		if err != nil {
			return WizardReply{Text: "⚠️ " + err.Error()}, true
		}
		s.spec.YearMin, s.spec.YearMax = min, max
		s.step = AwaitingMileage
		return WizardReply{Text: PromptMileage}, true

	case AwaitingMileage:
		max, err := parseMileageInput(text)
		if err != nil {
			return WizardReply{Text: "⚠️ " + err.Error()}, true
		}
		s.spec.MileageMax = max
		s.step = AwaitingBrands
		return WizardReply{Text: PromptBrands, ShowBrands: true}, true
	}
	return WizardReply{}, false
}

// ToggleBrand flips a brand on the selection and returns the new selection.
func (w *Wizard) ToggleBrand(subscriberID int64, brand string) ([]string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.session(subscriberID)
	if s == nil || s.step != AwaitingBrands {
		return nil, false
	}
	s.touched = w.now()

	brand = models.NormalizeBrand(brand)
	if brand == "" {
		return append([]string(nil), s.brands...), true
	}
	for i, b := range s.brands {
		if b == brand {
			s.brands = append(s.brands[:i], s.brands[i+1:]...)
			return append([]string(nil), s.brands...), true
		}
	}
	s.brands = append(s.brands, brand)
	return append([]string(nil), s.brands...), true
}

// Confirm finishes the dialog and hands back the assembled spec.
func (w *Wizard) Confirm(subscriberID int64) (models.FilterSpec, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.session(subscriberID)
	if s == nil || s.step != AwaitingBrands {
		return models.FilterSpec{}, false
	}
	delete(w.sessions, subscriberID)
	spec := s.spec
	if len(s.brands) > 0 {
		spec.Brands = append([]string(nil), s.brands...)
	}
	return spec, true
}

// Cancel discards the dialog. It reports whether one was open.
func (w *Wizard) Cancel(subscriberID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session(subscriberID) == nil {
		return false
	}
	delete(w.sessions, subscriberID)
	return true
}

// session must be called with mu held. Expired sessions are dropped here.
func (w *Wizard) session(id int64) *wizardSession {
	s, ok := w.sessions[id]
	if !ok {
		return nil
	}
	if w.ttl > 0 && w.now().Sub(s.touched) > w.ttl {
		delete(w.sessions, id)
		return nil
	}
	return s
}

// parseRangeInput accepts "a-b", "a-", "-b" and "-". Reversed bounds are swapped.
func parseRangeInput(text string, years bool) (*int, *int, error) {
	text = compactInput(text)
	if text == "" || text == "-" {
		return nil, nil, nil
	}
	lo, hi, found := strings.Cut(text, "-")
	if !found {
		return nil, nil, errBadRange
	}
	min, err := parseInputNumber(lo, years)
	if err != nil {
		return nil, nil, err
	}
	max, err := parseInputNumber(hi, years)
	if err != nil {
		return nil, nil, err
	}
	if min != nil && max != nil && *min > *max {
		min, max = max, min
	}
	return min, max, nil
}

func parseMileageInput(text string) (*int, error) {
	text = strings.TrimSuffix(strings.ToLower(compactInput(text)), "km")
	if text == "" || text == "-" {
		return nil, nil
	}
	v, err := parseInputNumber(text, false)
	if err != nil || v == nil {
		return nil, errBadMileage
	}
	return v, nil
}

func parseInputNumber(s string, year bool) (*int, error) {
	if s == "" {
		return nil, nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			if year {
				return nil, errBadYear
			}
			return nil, errBadRange
		}
	}
	if year && len(s) != 4 {
		return nil, errBadYear
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, errBadRange
	}
	if year && (v < 1900 || v > 2100) {
		return nil, errBadYear
	}
	return &v, nil
}

// compactInput drops all whitespace ("2 000 - 6 000" -> "2000-6000") and
// treats dashes as hyphens.
func compactInput(s string) string {
	s = strings.NewReplacer("–", "-", "—", "-").Replace(s)
	return strings.Join(strings.Fields(s), "")
}
