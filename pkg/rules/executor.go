// Package rules runs the ordered conditional pre/post-processing steps
// around the core mapping and target write. Every rule type has exactly one
// handler registered in a lookup table; a missing handler fails executor
// construction instead of silently no-oping per object.
package rules

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/syncbridge/syncbridge/pkg/expression"
	"github.com/syncbridge/syncbridge/pkg/mappings"
	"github.com/syncbridge/syncbridge/pkg/models"
)

// Context is the transient per-object state flowing through rules. Rules
// mutate the object (and notes), never the rule or synchronization
// configuration.
type Context struct {
	SynchronizationID int
	OriginID          string

	// Owner identifies the run for lock leases.
	Owner string

	Object map[string]interface{}

	// Notes collects soft failure messages from continue-policy rules.
	Notes []string
}

// RuleError wraps a rule failure together with the rule's failure policy so
// the reconciliation loop can decide between skipping the object and ending
// the run.
type RuleError struct {
	Rule   *models.Rule
	Policy string
	Err    error
}

func (e *RuleError) Error() string {
	name := e.Rule.Name
	if name == "" {
		name = e.Rule.Type
	}
	return fmt.Sprintf("rule %q failed: %s", name, e.Err.Error())
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// AbortsRun reports whether this failure should end the whole run.
func (e *RuleError) AbortsRun() bool {
	return e.Policy == models.RuleOnErrorAbortRun
}

type handlerFunc func(ctx context.Context, rule *models.Rule, rctx *Context) error

// Locker is satisfied by *locks.Service.
type Locker interface {
	Acquire(ctx context.Context, synchronizationID int, originID, owner string, ttl time.Duration) error
}

// MappingResolver resolves mapping ids referenced by mapping rules; it's
// satisfied by *mappings.Service.
type MappingResolver interface {
	RetrieveMapping(ctx context.Context, id int) (*models.Mapping, error)
}

// MappingApplier applies a resolved mapping; satisfied by
// *mappings.Executor.
type MappingApplier interface {
	Apply(mapping *models.Mapping, input map[string]interface{}) (map[string]interface{}, string, error)
	ApplyList(mapping *models.Mapping, inputs []map[string]interface{}) ([]map[string]interface{}, []*mappings.ElementError)
}

// Collaborators are the external delegates consumed by rule types whose side
// effects live outside the engine. Any of them may be nil; a rule needing a
// missing collaborator fails under its own policy.
type Collaborators struct {
	Authenticator Authenticator
	FileTransfer  FileTransfer
	ObjectSaver   ObjectSaver
	InputExtender InputExtender
	Synchronizer  Synchronizer
}

// Authenticator supplies credentials for authentication rules.
type Authenticator interface {
	Authenticate(ctx context.Context, config map[string]interface{}, object map[string]interface{}) (map[string]interface{}, error)
}

// FileTransfer handles download, upload, fetch_file, write_file,
// fileparts_create, and filepart_upload rules.
type FileTransfer interface {
	Transfer(ctx context.Context, operation string, config map[string]interface{}, object map[string]interface{}) (map[string]interface{}, error)
}

// ObjectSaver handles save_object rules.
type ObjectSaver interface {
	SaveObject(ctx context.Context, config map[string]interface{}, object map[string]interface{}) (map[string]interface{}, error)
}

// InputExtender handles extend_input and extend_external_input rules.
type InputExtender interface {
	Extend(ctx context.Context, external bool, config map[string]interface{}, object map[string]interface{}) (map[string]interface{}, error)
}

// Synchronizer handles synchronization rules, which chain a single-object
// reconciliation of another synchronization.
type Synchronizer interface {
	Synchronize(ctx context.Context, config map[string]interface{}, object map[string]interface{}) error
}

type Executor struct {
	eval     expression.Evaluator
	scripts  expression.ScriptRunner
	locker   Locker
	resolver MappingResolver
	applier  MappingApplier
	collab   Collaborators

	handlers map[string]handlerFunc
}

func NewExecutor(eval expression.Evaluator, scripts expression.ScriptRunner, locker Locker, resolver MappingResolver, applier MappingApplier, collab Collaborators) (*Executor, error) {
	ex := &Executor{
		eval:     eval,
		scripts:  scripts,
		locker:   locker,
		resolver: resolver,
		applier:  applier,
		collab:   collab,
	}

	ex.handlers = map[string]handlerFunc{
		models.RuleTypeMapping:             ex.handleMapping,
		models.RuleTypeError:               ex.handleError,
		models.RuleTypeScript:              ex.handleScript,
		models.RuleTypeJavaScript:          ex.handleScript,
		models.RuleTypeSynchronization:     ex.handleSynchronization,
		models.RuleTypeAuthentication:      ex.handleAuthentication,
		models.RuleTypeDownload:            ex.handleFileTransfer,
		models.RuleTypeUpload:              ex.handleFileTransfer,
		models.RuleTypeLocking:             ex.handleLocking,
		models.RuleTypeExtendInput:         ex.handleExtendInput,
		models.RuleTypeExtendExternalInput: ex.handleExtendInput,
		models.RuleTypeFetchFile:           ex.handleFileTransfer,
		models.RuleTypeWriteFile:           ex.handleFileTransfer,
		models.RuleTypeFilepartsCreate:     ex.handleFileTransfer,
		models.RuleTypeFilepartUpload:      ex.handleFileTransfer,
		models.RuleTypeSaveObject:          ex.handleSaveObject,
	}

	// Refuse to start with an unhandled rule type.
	for _, ruleType := range models.RuleTypes {
		if _, ok := ex.handlers[ruleType]; !ok {
			return nil, errors.Errorf("no handler registered for rule type %q", ruleType)
		}
	}

	return ex, nil
}

// Run evaluates the rules matching the given timing against the context, in
// (order, id) ascending order. It returns the updated context and, if a rule
// failed with an abort policy, a *RuleError.
func (ex *Executor) Run(ctx context.Context, ruleList []*models.Rule, timing string, rctx *Context) (*Context, error) {
	matched := make([]*models.Rule, 0, len(ruleList))
	for _, rule := range ruleList {
		if rule.Timing == timing {
			matched = append(matched, rule)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Order != matched[j].Order {
			return matched[i].Order < matched[j].Order
		}
		return matched[i].ID < matched[j].ID
	})

	for _, rule := range matched {
		if rule.ConfigurationParsed == nil {
			if err := rule.UnmarshalConfiguration(); err != nil {
				return rctx, &RuleError{Rule: rule, Policy: models.RuleOnErrorAbortObject, Err: err}
			}
		}

		if rule.Condition != "" {
			result, err := ex.eval.Evaluate(rule.Condition, rctx.Object)
			if err != nil {
				return rctx, &RuleError{Rule: rule, Policy: rule.OnError(), Err: err}
			}
			if !expression.Truthy(result) {
				continue
			}
		}

		handler, ok := ex.handlers[rule.Type]
		if !ok {
			return rctx, &RuleError{Rule: rule, Policy: models.RuleOnErrorAbortObject, Err: errors.Errorf("unknown rule type %q", rule.Type)}
		}

		if err := handler(ctx, rule, rctx); err != nil {
			ruleErr := &RuleError{Rule: rule, Policy: rule.OnError(), Err: err}
			if ruleErr.Policy == models.RuleOnErrorContinue {
				rctx.Notes = append(rctx.Notes, ruleErr.Error())
				continue
			}
			return rctx, ruleErr
		}
	}

	return rctx, nil
}
