package internal

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lychee-technology/formedit"
	"go.uber.org/zap"
)

const numericPattern = `^-?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?$`

var (
	isoUTCPattern    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`)
	hexIDPattern     = regexp.MustCompile(`^[a-f0-9\-]{4,}$`)
	stampKeyPattern  = regexp.MustCompile(`author|modified|created|updated`)
	numericValueExpr = regexp.MustCompile(numericPattern)
)

// RuleInferencer derives field rules from observed values.
type RuleInferencer struct {
	cfg        formedit.InferenceConfig
	vocabulary map[string]bool
}

// NewRuleInferencer creates an inferencer with the given thresholds.
func NewRuleInferencer(cfg formedit.InferenceConfig) *RuleInferencer {
	vocab := make(map[string]bool, len(cfg.EnumVocabulary))
	for _, v := range cfg.EnumVocabulary {
		vocab[strings.ToLower(v)] = true
	}
	return &RuleInferencer{cfg: cfg, vocabulary: vocab}
}

// Infer returns one rule per key of the first record. Keys that only appear
// in later records get no rule. Null values take no part in classification
// but still count as blank for the required check.
func (ri *RuleInferencer) Infer(records []formedit.Record) formedit.RuleSet {
	rules := make(formedit.RuleSet)
	if len(records) == 0 {
		return rules
	}

	for _, key := range records[0].Keys() {
		values := NewOrderedSet[string]()
		for _, rec := range records {
			if v, ok := rec.Get(key); ok && !rec.IsNull(key) {
				values.Add(strings.TrimSpace(v))
			}
		}

		rule := ri.classify(key, values)
		if !rule.Required && allNonBlank(records, key) {
			rule.Required = true
		}
		rules[key] = rule
	}

	zap.S().Debugw("inferred field rules", "records", len(records), "fields", len(rules))
	return rules
}

func (ri *RuleInferencer) classify(key string, values *OrderedSet[string]) formedit.FieldRule {
	sample, _ := values.First()

	if values.Every(func(v string) bool { return v == "true" || v == "false" }) {
		return formedit.FieldRule{Type: formedit.WidgetToggle}
	}

	if isoUTCPattern.MatchString(sample) {
		return formedit.FieldRule{Type: formedit.WidgetDatetime, ReadOnly: true}
	}

	if key == formedit.IDKey || (hexIDPattern.MatchString(sample) && values.Every(hexIDPattern.MatchString)) {
		return formedit.FieldRule{Type: formedit.WidgetText, ReadOnly: true}
	}

	if stampKeyPattern.MatchString(key) {
		return formedit.FieldRule{Type: formedit.WidgetText, ReadOnly: true}
	}

	if ri.vocabulary[strings.ToLower(sample)] {
		options := make([]string, len(ri.cfg.EnumVocabulary))
		copy(options, ri.cfg.EnumVocabulary)
		return formedit.FieldRule{Type: formedit.WidgetSelect, Options: options, Required: true}
	}

	n := values.Size()
	if n >= ri.cfg.SelectMinDistinct && n <= ri.cfg.SelectMaxDistinct &&
		values.Every(func(v string) bool { return utf8.RuneCountInString(v) < ri.cfg.SelectMaxLength }) {
		return formedit.FieldRule{Type: formedit.WidgetSelect, Options: values.ToSlice()}
	}

	if utf8.RuneCountInString(sample) > ri.cfg.TextareaMinLength {
		return formedit.FieldRule{Type: formedit.WidgetTextarea}
	}

	if isNumeric(sample) {
		return formedit.FieldRule{Type: formedit.WidgetNumber}
	}
	return formedit.FieldRule{Type: formedit.WidgetText}
}

func isNumeric(s string) bool {
	return numericValueExpr.MatchString(s)
}

func allNonBlank(records []formedit.Record, key string) bool {
	for _, rec := range records {
		if strings.TrimSpace(rec.Value(key)) == "" {
			return false
		}
	}
	return true
}

// RuleCache keeps the inferred rule set of every collection seen in a
// session. Entries are never invalidated implicitly.
type RuleCache struct {
	inferencer *RuleInferencer
	mu         sync.RWMutex
	rules      map[string]formedit.RuleSet
}

// NewRuleCache creates an empty cache backed by inferencer.
func NewRuleCache(inferencer *RuleInferencer) *RuleCache {
	return &RuleCache{
		inferencer: inferencer,
		rules:      make(map[string]formedit.RuleSet),
	}
}

// Rules returns the cached rules of collection, inferring them from records on
// first use. An empty result is cached like any other; call Invalidate to rescan.
func (c *RuleCache) Rules(collection string, records []formedit.Record) formedit.RuleSet {
	c.mu.RLock()
	rules, ok := c.rules[collection]
	c.mu.RUnlock()
	if ok {
		return rules
	}

	rules = c.inferencer.Infer(records)
	c.mu.Lock()
	if existing, ok := c.rules[collection]; ok {
		rules = existing
	} else {
		c.rules[collection] = rules
	}
	c.mu.Unlock()
	return rules
}

// Cached returns the rules of collection without inferring.
func (c *RuleCache) Cached(collection string) (formedit.RuleSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rules, ok := c.rules[collection]
	return rules, ok
}

// Invalidate drops the cached rules of collection.
func (c *RuleCache) Invalidate(collection string) {
	c.mu.Lock()
	delete(c.rules, collection)
	c.mu.Unlock()
}
