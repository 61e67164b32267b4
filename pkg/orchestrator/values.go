package orchestrator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/schema"
	"github.com/goliatone/go-formflow/pkg/validation"
)

// Field names with built-in behaviour.
const (
	FieldUsername = "Username"
	FieldEmail    = "email"
	FieldMobile   = "mobile"
	FieldRole     = "Role"
	FieldSubRole  = "Sub-Role"
)

// Contact hints shown next to the email and mobile fields.
const (
	HintEmailOptional   = "Email is optional since you've provided a Contact number"
	HintMobileOptional  = "Contact number is optional since you've provided an email"
	HintUsernameContact = "Username must be either a valid email or 10-digit mobile number"
)

// chain is one dependent walk started by a value change. gens holds the
// field generations the walk was started for; results for fields whose
// generation moved on are discarded.
type chain struct {
	root   string
	ctx    context.Context
	cancel context.CancelFunc
	gens   map[string]uint64
}

// Load installs the schema, runs the initial option pass and the chains of
// prefilled controllers, then moves to ready. A dependency cycle moves the
// form to the error state.
func (o *Orchestrator) Load(ctx context.Context, s *schema.Schema, ui schema.UISchema, prefill schema.FormData) error {
	if s == nil {
		return fmt.Errorf("orchestrator: load: nil schema")
	}
	graph, err := options.BuildGraph(s)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.state != StateLoadingInitial {
		o.mu.Unlock()
		return fmt.Errorf("%w: load from %s", ErrInvalidTransition, o.state)
	}
	if err != nil {
		o.transitionLocked(StateError)
		o.alert = Alert{Severity: SeverityError, Message: err.Error()}
		o.mu.Unlock()
		o.notify()
		return fmt.Errorf("orchestrator: load: %w", err)
	}
	o.graph = graph
	o.authored = s.Clone()
	o.authoredUI = ui.Clone()
	if o.authoredUI == nil {
		o.authoredUI = schema.UISchema{}
	}
	o.data = prefill.Clone()
	for name := range o.data {
		if s.Has(name) {
			o.touched[name] = struct{}{}
		}
	}
	o.refreshHintLocked()
	o.deriveLocked()
	snapshot, sess := o.authored, o.session
	data := o.data.Clone()
	o.mu.Unlock()
	o.notify()

	initial := graph.Initial()
	if len(initial) > 0 {
		updates := o.fetcher.Fetch(ctx, snapshot, sess, initial, data)
		if ctx.Err() != nil {
			return fmt.Errorf("orchestrator: load: %w", ctx.Err())
		}
		o.mu.Lock()
		o.mergeLocked(updates)
		o.mu.Unlock()
	}

	for _, root := range o.prefilledRoots(graph, data) {
		o.mu.Lock()
		c := o.startChainLocked(ctx, root)
		o.mu.Unlock()
		o.runChain(c)
	}

	o.mu.Lock()
	if o.state == StateLoadingInitial && !o.closed {
		o.transitionLocked(StateReady)
	}
	o.mu.Unlock()
	o.notify()
	o.logger.WithField("initial", len(initial)).Info("form loaded")
	return nil
}

// prefilledRoots lists the prefilled controllers whose own controller is not
// prefilled; their chains cover every prefilled descendant.
func (o *Orchestrator) prefilledRoots(graph *options.Graph, data schema.FormData) []string {
	var roots []string
	for _, name := range o.authored.Names() {
		if schema.IsEmpty(data[name]) || len(graph.Dependents(name)) == 0 {
			continue
		}
		if parent, ok := graph.Controller(name); ok && !schema.IsEmpty(data[parent]) {
			continue
		}
		roots = append(roots, name)
	}
	return roots
}

// SetValue stores a field value, re-derives the schema and errors, and runs
// the dependent option chain of the field. It returns once the chain
// finished or was superseded by a later change.
func (o *Orchestrator) SetValue(ctx context.Context, name string, value any) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.state != StateReady {
		o.mu.Unlock()
		return fmt.Errorf("%w: set value in %s", ErrInvalidTransition, o.state)
	}
	field, ok := o.current.Field(name)
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if field.IsMultiSelect && field.MaxSelections > 0 {
		if count := len(schema.StringList(value)); count > field.MaxSelections {
			o.mu.Unlock()
			return fmt.Errorf("%w: %s allows %d, got %d", ErrSelectionLimit, name, field.MaxSelections, count)
		}
	}
	previous, had := o.data[name]
	if had && schema.ValuesEqual(previous, value) {
		o.mu.Unlock()
		return nil
	}

	if schema.IsEmpty(value) {
		delete(o.data, name)
	} else {
		o.data[name] = value
	}
	o.touched[name] = struct{}{}
	switch name {
	case FieldUsername:
		o.autofillContactLocked(schema.Stringify(value))
	case FieldRole:
		delete(o.data, FieldSubRole)
	}
	o.refreshHintLocked()
	o.deriveLocked()

	var c *chain
	if o.graph != nil && len(o.graph.Dependents(name)) > 0 {
		c = o.startChainLocked(ctx, name)
	}
	o.mu.Unlock()
	o.notify()

	if c != nil {
		o.runChain(c)
	}
	return nil
}

// Value returns the stored value of name.
func (o *Orchestrator) Value(name string) (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	value, ok := o.data[name]
	return value, ok
}

// Errors returns the current error state.
func (o *Orchestrator) Errors() validation.ErrorState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errors.Clone()
}

func (o *Orchestrator) autofillContactLocked(username string) {
	switch o.validator.ClassifyContact(username) {
	case validation.ContactMobile:
		if o.authored.Has(FieldMobile) {
			o.data[FieldMobile] = username
			o.touched[FieldMobile] = struct{}{}
		}
	case validation.ContactEmail:
		if o.authored.Has(FieldEmail) {
			o.data[FieldEmail] = username
			o.touched[FieldEmail] = struct{}{}
		}
	}
}

func (o *Orchestrator) refreshHintLocked() {
	email, mobile := o.data.String(FieldEmail), o.data.String(FieldMobile)
	switch {
	case email != "" && mobile != "":
		o.hint = ""
	case email != "":
		o.hint = HintMobileOptional
	case mobile != "":
		o.hint = HintEmailOptional
	case o.data.String(FieldUsername) != "" && !o.validator.IsValidUsername(o.authored, o.data.String(FieldUsername)):
		o.hint = HintUsernameContact
	default:
		o.hint = ""
	}
}

// startChainLocked bumps the generation of root's descendants and cancels
// every running chain they belong to.
func (o *Orchestrator) startChainLocked(parent context.Context, root string) *chain {
	descendants := o.graph.Descendants(root)
	affected := make(map[string]struct{}, len(descendants)+1)
	affected[root] = struct{}{}
	for _, name := range descendants {
		affected[name] = struct{}{}
	}
	for key, running := range o.chains {
		if _, hit := affected[key]; hit {
			running.cancel()
			delete(o.chains, key)
		}
	}

	ctx, cancel := context.WithCancel(parent)
	c := &chain{root: root, ctx: ctx, cancel: cancel, gens: map[string]uint64{}}
	for _, name := range descendants {
		o.gens[name]++
		c.gens[name] = o.gens[name]
	}
	o.chains[root] = c
	return c
}

// runChain walks the dependents of the chain root level by level. Each level
// is fetched in parallel with the values current once the previous level was
// merged.
func (o *Orchestrator) runChain(c *chain) {
	defer func() {
		o.mu.Lock()
		if o.chains[c.root] == c {
			delete(o.chains, c.root)
		}
		o.mu.Unlock()
		c.cancel()
	}()

	for _, level := range o.graph.Levels(c.root) {
		o.mu.Lock()
		live := o.liveLocked(c, level)
		snapshot, sess, data := o.authored, o.session, o.data.Clone()
		o.mu.Unlock()
		if len(live) == 0 || c.ctx.Err() != nil {
			return
		}

		updates := o.fetcher.Fetch(c.ctx, snapshot, sess, live, data)

		o.mu.Lock()
		if c.ctx.Err() != nil || o.closed {
			o.mu.Unlock()
			o.logger.WithField("root", c.root).Debug("option chain superseded")
			return
		}
		accepted := updates[:0:0]
		for _, update := range updates {
			if o.gens[update.Field] == c.gens[update.Field] {
				accepted = append(accepted, update)
			}
		}
		o.mergeLocked(accepted)
		o.mu.Unlock()
		o.notify()
	}
}

func (o *Orchestrator) liveLocked(c *chain, level []string) []string {
	live := make([]string, 0, len(level))
	for _, name := range level {
		if o.gens[name] == c.gens[name] {
			live = append(live, name)
		}
	}
	return live
}

// mergeLocked applies one pass of updates atomically and clears values that
// are no longer offered.
func (o *Orchestrator) mergeLocked(updates []options.Update) {
	if len(updates) == 0 {
		return
	}
	o.authored = options.ApplyUpdates(o.authored, updates)
	for _, name := range options.Stale(o.data, updates) {
		o.logger.WithFields(logrus.Fields{"field": name}).Debug("clearing stale value")
		delete(o.data, name)
	}
	o.deriveLocked()
}
