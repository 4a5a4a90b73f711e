// Package contextvar models per-agent ContextVariables and their
// calendar-subset freshness rules (spec.md §3 ContextVariable).
package contextvar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emcie-io/agentrt/internal/store"
	"github.com/emcie-io/agentrt/internal/toolservice"
)

const (
	variableCollection = "context_variables"
	valueCollection     = "context_variable_values"
)

type (
	// FreshnessRule is a calendar-subset predicate: a stored value is due for
	// refresh when the current moment matches every non-empty field
	// (spec.md §3, GLOSSARY "Freshness rule"). Empty slices mean "any".
	FreshnessRule struct {
		Months      []time.Month
		DaysOfMonth []int
		DaysOfWeek  []time.Weekday
		Hours       []int
		Minutes     []int
		Seconds     []int
	}

	// Variable is a named, optionally tool-backed value attached to an
	// agent (spec.md §3).
	Variable struct {
		ID             string
		AgentID        string
		Name           string
		Description    string
		ToolID         *toolservice.ToolID
		FreshnessRules *FreshnessRule
	}

	// Value is the last-evaluated value for one (variable, key) pair, where
	// key is typically the end-user/customer id the value is scoped to.
	Value struct {
		VariableID string
		Key        string
		Data       any
		UpdatedAt  time.Time
	}
)

// Matches reports whether t satisfies every non-empty field of r. A nil
// receiver (no freshness_rules) never matches, signaling "refresh only on
// session creation" per spec.md §3.
func (r *FreshnessRule) Matches(t time.Time) bool {
	if r == nil {
		return false
	}
	if len(r.Months) > 0 && !containsMonth(r.Months, t.Month()) {
		return false
	}
	if len(r.DaysOfMonth) > 0 && !containsInt(r.DaysOfMonth, t.Day()) {
		return false
	}
	if len(r.DaysOfWeek) > 0 && !containsWeekday(r.DaysOfWeek, t.Weekday()) {
		return false
	}
	if len(r.Hours) > 0 && !containsInt(r.Hours, t.Hour()) {
		return false
	}
	if len(r.Minutes) > 0 && !containsInt(r.Minutes, t.Minute()) {
		return false
	}
	if len(r.Seconds) > 0 && !containsInt(r.Seconds, t.Second()) {
		return false
	}
	return true
}

// NeedsRefresh reports whether a variable with no prior value (isNew), or
// whose freshness rule matches now, must be re-evaluated via its tool
// before use (spec.md §3: "if freshness_rules is absent, the variable is
// refreshed only on session creation").
func (v Variable) NeedsRefresh(now time.Time, isNew bool) bool {
	if isNew {
		return true
	}
	if v.FreshnessRules == nil {
		return false
	}
	return v.FreshnessRules.Matches(now)
}

func containsMonth(months []time.Month, m time.Month) bool {
	for _, x := range months {
		if x == m {
			return true
		}
	}
	return false
}

func containsWeekday(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// ErrVariableNotFound indicates no context variable exists with the given id.
var ErrVariableNotFound = errors.New("context variable not found")

// Store persists Variables and their per-key evaluated Values.
type Store interface {
	CreateVariable(ctx context.Context, v Variable) (Variable, error)
	LoadVariable(ctx context.Context, id string) (Variable, error)
	DeleteVariable(ctx context.Context, id string) error
	ListVariables(ctx context.Context, agentID string) ([]Variable, error)

	LoadValue(ctx context.Context, variableID, key string) (Value, bool, error)
	SetValue(ctx context.Context, v Value) error
}

type storeImpl struct {
	db store.Database
}

// NewStore constructs a Store persisting into db.
func NewStore(db store.Database) Store {
	return &storeImpl{db: db}
}

func (s *storeImpl) CreateVariable(ctx context.Context, v Variable) (Variable, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	coll, err := s.db.Collection(ctx, variableCollection)
	if err != nil {
		return Variable{}, fmt.Errorf("open context variables collection: %w", err)
	}
	if err := coll.Insert(ctx, variableDocument(v)); err != nil {
		return Variable{}, fmt.Errorf("insert context variable: %w", err)
	}
	return v, nil
}

func (s *storeImpl) LoadVariable(ctx context.Context, id string) (Variable, error) {
	coll, err := s.db.Collection(ctx, variableCollection)
	if err != nil {
		return Variable{}, fmt.Errorf("open context variables collection: %w", err)
	}
	doc, err := coll.Find(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Variable{}, ErrVariableNotFound
		}
		return Variable{}, err
	}
	return variableFromDocument(doc), nil
}

func (s *storeImpl) DeleteVariable(ctx context.Context, id string) error {
	coll, err := s.db.Collection(ctx, variableCollection)
	if err != nil {
		return fmt.Errorf("open context variables collection: %w", err)
	}
	if err := coll.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrVariableNotFound
		}
		return err
	}
	return nil
}

func (s *storeImpl) ListVariables(ctx context.Context, agentID string) ([]Variable, error) {
	coll, err := s.db.Collection(ctx, variableCollection)
	if err != nil {
		return nil, fmt.Errorf("open context variables collection: %w", err)
	}
	docs, err := coll.List(ctx, store.Filter{"agent_id": store.Document{"$eq": agentID}})
	if err != nil {
		return nil, err
	}
	out := make([]Variable, 0, len(docs))
	for _, d := range docs {
		out = append(out, variableFromDocument(d))
	}
	return out, nil
}

func (s *storeImpl) LoadValue(ctx context.Context, variableID, key string) (Value, bool, error) {
	coll, err := s.db.Collection(ctx, valueCollection)
	if err != nil {
		return Value{}, false, fmt.Errorf("open context variable values collection: %w", err)
	}
	id := variableID + "|" + key
	doc, err := coll.Find(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Value{}, false, nil
		}
		return Value{}, false, err
	}
	return valueFromDocument(doc), true, nil
}

func (s *storeImpl) SetValue(ctx context.Context, v Value) error {
	coll, err := s.db.Collection(ctx, valueCollection)
	if err != nil {
		return fmt.Errorf("open context variable values collection: %w", err)
	}
	id := v.VariableID + "|" + v.Key
	doc := valueDocument(id, v)
	if _, err := coll.Find(ctx, id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return coll.Insert(ctx, doc)
	}
	return coll.Update(ctx, id, doc)
}

func variableDocument(v Variable) store.Document {
	doc := store.Document{
		"id":          v.ID,
		"agent_id":    v.AgentID,
		"name":        v.Name,
		"description": v.Description,
	}
	if v.ToolID != nil {
		doc["tool_id"] = v.ToolID.String()
	}
	if v.FreshnessRules != nil {
		doc["freshness_rules"] = freshnessDocument(*v.FreshnessRules)
	}
	return doc
}

func variableFromDocument(doc store.Document) Variable {
	v := Variable{
		ID:          asString(doc["id"]),
		AgentID:     asString(doc["agent_id"]),
		Name:        asString(doc["name"]),
		Description: asString(doc["description"]),
	}
	if raw := asString(doc["tool_id"]); raw != "" {
		if id, err := toolservice.ParseToolID(raw); err == nil {
			v.ToolID = &id
		}
	}
	if raw, ok := doc["freshness_rules"].(map[string]any); ok {
		rule := freshnessFromDocument(raw)
		v.FreshnessRules = &rule
	}
	return v
}

func freshnessDocument(r FreshnessRule) map[string]any {
	return map[string]any{
		"months":        intsFromMonths(r.Months),
		"days_of_month": intsFromInts(r.DaysOfMonth),
		"days_of_week":  intsFromWeekdays(r.DaysOfWeek),
		"hours":         intsFromInts(r.Hours),
		"minutes":       intsFromInts(r.Minutes),
		"seconds":       intsFromInts(r.Seconds),
	}
}

func freshnessFromDocument(raw map[string]any) FreshnessRule {
	return FreshnessRule{
		Months:      monthsFromAny(raw["months"]),
		DaysOfMonth: intsFromAny(raw["days_of_month"]),
		DaysOfWeek:  weekdaysFromAny(raw["days_of_week"]),
		Hours:       intsFromAny(raw["hours"]),
		Minutes:     intsFromAny(raw["minutes"]),
		Seconds:     intsFromAny(raw["seconds"]),
	}
}

func valueDocument(id string, v Value) store.Document {
	return store.Document{
		"id":          id,
		"variable_id": v.VariableID,
		"key":         v.Key,
		"data":        v.Data,
		"updated_at":  v.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func valueFromDocument(doc store.Document) Value {
	updatedAt, _ := time.Parse(time.RFC3339Nano, asString(doc["updated_at"]))
	return Value{
		VariableID: asString(doc["variable_id"]),
		Key:        asString(doc["key"]),
		Data:       doc["data"],
		UpdatedAt:  updatedAt,
	}
}

func intsFromMonths(months []time.Month) []any {
	out := make([]any, 0, len(months))
	for _, m := range months {
		out = append(out, float64(m))
	}
	return out
}

func intsFromWeekdays(days []time.Weekday) []any {
	out := make([]any, 0, len(days))
	for _, d := range days {
		out = append(out, float64(d))
	}
	return out
}

func intsFromInts(xs []int) []any {
	out := make([]any, 0, len(xs))
	for _, x := range xs {
		out = append(out, float64(x))
	}
	return out
}

func monthsFromAny(v any) []time.Month {
	raw, _ := v.([]any)
	out := make([]time.Month, 0, len(raw))
	for _, x := range raw {
		if n, ok := x.(float64); ok {
			out = append(out, time.Month(int(n)))
		}
	}
	return out
}

func weekdaysFromAny(v any) []time.Weekday {
	raw, _ := v.([]any)
	out := make([]time.Weekday, 0, len(raw))
	for _, x := range raw {
		if n, ok := x.(float64); ok {
			out = append(out, time.Weekday(int(n)))
		}
	}
	return out
}

func intsFromAny(v any) []int {
	raw, _ := v.([]any)
	out := make([]int, 0, len(raw))
	for _, x := range raw {
		if n, ok := x.(float64); ok {
			out = append(out, int(n))
		}
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
