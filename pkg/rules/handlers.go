package rules

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/syncbridge/syncbridge/pkg/dotpath"
	"github.com/syncbridge/syncbridge/pkg/models"
)

const defaultLockTTL = 5 * time.Minute

func (ex *Executor) handleMapping(ctx context.Context, rule *models.Rule, rctx *Context) error {
	idValue, ok := rule.ConfigurationParsed["mappingId"]
	if !ok {
		return errors.New("mapping rule is missing mappingId")
	}
	id, ok := numberToInt(idValue)
	if !ok {
		return errors.Errorf("mapping rule has invalid mappingId %v", idValue)
	}

	mapping, err := ex.resolver.RetrieveMapping(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	// With a path configured the rule maps a list of objects in place rather
	// than the object itself.
	if path, ok := rule.ConfigurationParsed["path"].(string); ok && path != "" {
		return ex.applyMappingList(mapping, path, rctx)
	}

	output, _, err := ex.applier.Apply(mapping, rctx.Object)
	if err != nil {
		return errors.WithStack(err)
	}
	rctx.Object = output
	return nil
}

// applyMappingList maps each element of the list at path independently. A
// failed element is dropped from the output and noted positionally; its
// siblings are kept.
func (ex *Executor) applyMappingList(mapping *models.Mapping, path string, rctx *Context) error {
	raw, ok := dotpath.Get(rctx.Object, path)
	if !ok {
		return errors.Errorf("mapping rule path %q not found", path)
	}
	list, ok := raw.([]interface{})
	if !ok {
		return errors.Errorf("mapping rule path %q is not a list", path)
	}

	inputs := make([]map[string]interface{}, len(list))
	for i, e := range list {
		m, ok := e.(map[string]interface{})
		if !ok {
			return errors.Errorf("mapping rule path %q element %d is not an object", path, i)
		}
		inputs[i] = m
	}

	outputs, errs := ex.applier.ApplyList(mapping, inputs)

	kept := make([]interface{}, 0, len(outputs))
	for _, output := range outputs {
		if output != nil {
			kept = append(kept, output)
		}
	}
	dotpath.Set(rctx.Object, path, kept)

	for _, elementErr := range errs {
		rctx.Notes = append(rctx.Notes, elementErr.Error())
	}
	return nil
}

// handleError always fails; it exists so configurations can force a failure
// when a condition matches (e.g. reject objects missing a required field).
func (ex *Executor) handleError(_ context.Context, rule *models.Rule, _ *Context) error {
	msg, _ := rule.ConfigurationParsed["message"].(string)
	if msg == "" {
		msg = "object rejected by error rule"
	}
	return errors.New(msg)
}

func (ex *Executor) handleScript(_ context.Context, rule *models.Rule, rctx *Context) error {
	script, _ := rule.ConfigurationParsed["script"].(string)
	if script == "" {
		return errors.New("script rule is missing script")
	}

	updated, err := ex.scripts.Run(script, rctx.Object)
	if err != nil {
		return errors.WithStack(err)
	}
	rctx.Object = updated
	return nil
}

func (ex *Executor) handleLocking(ctx context.Context, rule *models.Rule, rctx *Context) error {
	if ex.locker == nil {
		return errors.New("no locker configured")
	}

	ttl := defaultLockTTL
	if seconds, ok := numberToInt(rule.ConfigurationParsed["ttlSeconds"]); ok && seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}

	return ex.locker.Acquire(ctx, rctx.SynchronizationID, rctx.OriginID, rctx.Owner, ttl)
}

func (ex *Executor) handleSynchronization(ctx context.Context, rule *models.Rule, rctx *Context) error {
	if ex.collab.Synchronizer == nil {
		return errors.New("no synchronizer collaborator configured")
	}
	return ex.collab.Synchronizer.Synchronize(ctx, rule.ConfigurationParsed, rctx.Object)
}

func (ex *Executor) handleAuthentication(ctx context.Context, rule *models.Rule, rctx *Context) error {
	if ex.collab.Authenticator == nil {
		return errors.New("no authenticator collaborator configured")
	}
	updated, err := ex.collab.Authenticator.Authenticate(ctx, rule.ConfigurationParsed, rctx.Object)
	if err != nil {
		return errors.WithStack(err)
	}
	rctx.Object = updated
	return nil
}

func (ex *Executor) handleFileTransfer(ctx context.Context, rule *models.Rule, rctx *Context) error {
	if ex.collab.FileTransfer == nil {
		return errors.New("no file transfer collaborator configured")
	}
	updated, err := ex.collab.FileTransfer.Transfer(ctx, rule.Type, rule.ConfigurationParsed, rctx.Object)
	if err != nil {
		return errors.WithStack(err)
	}
	rctx.Object = updated
	return nil
}

func (ex *Executor) handleExtendInput(ctx context.Context, rule *models.Rule, rctx *Context) error {
	if ex.collab.InputExtender == nil {
		return errors.New("no input extender collaborator configured")
	}
	external := rule.Type == models.RuleTypeExtendExternalInput
	updated, err := ex.collab.InputExtender.Extend(ctx, external, rule.ConfigurationParsed, rctx.Object)
	if err != nil {
		return errors.WithStack(err)
	}
	rctx.Object = updated
	return nil
}

func (ex *Executor) handleSaveObject(ctx context.Context, rule *models.Rule, rctx *Context) error {
	if ex.collab.ObjectSaver == nil {
		return errors.New("no object saver collaborator configured")
	}
	updated, err := ex.collab.ObjectSaver.SaveObject(ctx, rule.ConfigurationParsed, rctx.Object)
	if err != nil {
		return errors.WithStack(err)
	}
	rctx.Object = updated
	return nil
}

// numberToInt normalizes the numeric types JSON decoding and goja exports
// produce.
func numberToInt(v interface{}) (int, bool) {
	switch tv := v.(type) {
	case int:
		return tv, true
	case int64:
		return int(tv), true
	case float64:
		return int(tv), true
	default:
		return 0, false
	}
}
