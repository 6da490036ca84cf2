package repository

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"coglex/internal/domain"
)

// MemoryDocumentRepository es un DocumentRepository en memoria.
// Soporta filtros de igualdad, $lt/$lte/$gt/$gte/$ne/$exists y updates $set/$inc/$unset.
type MemoryDocumentRepository struct {
	mu          sync.Mutex
	collections map[string][]domain.Document
}

func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{collections: make(map[string][]domain.Document)}
}

func (r *MemoryDocumentRepository) Find(_ context.Context, collection string, filter domain.Filter, projection domain.Document) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Document
	for _, doc := range r.collections[collection] {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, project(doc, projection))
		}
	}
	return out, nil
}

func (r *MemoryDocumentRepository) Insert(_ context.Context, collection string, docs []domain.Document) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		row := doc.Clone()
		id := NewDocumentID()
		row[domain.FieldID] = id
		r.collections[collection] = append(r.collections[collection], row)
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *MemoryDocumentRepository) InsertUnique(_ context.Context, collection string, doc domain.Document) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Igual que el índice parcial de Mongo: solo los _key string son únicos.
	if key, ok := doc[domain.FieldKey].(string); ok {
		for _, existing := range r.collections[collection] {
			if v, isString := existing[domain.FieldKey].(string); isString && v == key {
				return "", ErrDuplicateKey
			}
		}
	}
	row := doc.Clone()
	id := NewDocumentID()
	row[domain.FieldID] = id
	r.collections[collection] = append(r.collections[collection], row)
	return id, nil
}

func (r *MemoryDocumentRepository) Update(_ context.Context, collection string, update domain.Update, filter domain.Filter) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched, modified int64
	docs := r.collections[collection]
	for i, doc := range docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return 0, 0, err
		}
		if !ok {
			continue
		}
		matched++
		next, err := apply(doc, update)
		if err != nil {
			return 0, 0, err
		}
		if !reflect.DeepEqual(doc, next) {
			modified++
		}
		docs[i] = next
	}
	return matched, modified, nil
}

func (r *MemoryDocumentRepository) FindOneAndUpdate(_ context.Context, collection string, filter domain.Filter, update domain.Update) (domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := r.collections[collection]
	for i, doc := range docs {
		ok, err := matches(doc, filter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		next, err := apply(doc, update)
		if err != nil {
			return nil, err
		}
		docs[i] = next
		return next.Clone(), nil
	}
	return nil, ErrNoDocuments
}

func (r *MemoryDocumentRepository) Delete(_ context.Context, collection string, filter domain.Filter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	kept := r.collections[collection][:0]
	for _, doc := range r.collections[collection] {
		ok, err := matches(doc, filter)
		if err != nil {
			return 0, err
		}
		if ok {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	r.collections[collection] = kept
	return deleted, nil
}

func (r *MemoryDocumentRepository) Aggregate(_ context.Context, _ string, _ []domain.Document) ([]domain.Document, error) {
	return nil, ErrUnsupported
}

func matches(doc domain.Document, filter domain.Filter) (bool, error) {
	for field, want := range filter {
		got, present := doc[field]
		ops, isOps := operatorMap(want)
		if !isOps {
			if !present || !equalValues(got, want) {
				return false, nil
			}
			continue
		}
		for op, arg := range ops {
			ok, err := evalOperator(op, got, present, arg)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func evalOperator(op string, got any, present bool, arg any) (bool, error) {
	switch op {
	case "$exists":
		want, _ := arg.(bool)
		return present == want, nil
	case "$ne":
		return !present || !equalValues(got, arg), nil
	case "$lt", "$lte", "$gt", "$gte":
		if !present {
			return false, nil
		}
		cmp, ok := compareValues(got, arg)
		if !ok {
			return false, nil
		}
		switch op {
		case "$lt":
			return cmp < 0, nil
		case "$lte":
			return cmp <= 0, nil
		case "$gt":
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	default:
		return false, fmt.Errorf("unsupported filter operator %s", op)
	}
}

func apply(doc domain.Document, update domain.Update) (domain.Document, error) {
	next := doc.Clone()
	for op, raw := range update {
		fields, ok := asMap(raw)
		if !ok {
			return nil, fmt.Errorf("update operator %s expects a document", op)
		}
		switch op {
		case "$set":
			for k, v := range fields {
				if k == domain.FieldID {
					continue
				}
				next[k] = v
			}
		case "$unset":
			for k := range fields {
				if k == domain.FieldID {
					continue
				}
				delete(next, k)
			}
		case "$inc":
			for k, v := range fields {
				sum, err := addNumbers(next[k], v)
				if err != nil {
					return nil, fmt.Errorf("$inc %s: %w", k, err)
				}
				next[k] = sum
			}
		default:
			return nil, fmt.Errorf("unsupported update operator %s", op)
		}
	}
	return next, nil
}

func project(doc domain.Document, projection domain.Document) domain.Document {
	if len(projection) == 0 {
		return doc.Clone()
	}
	include := false
	for _, v := range projection {
		if truthy(v) {
			include = true
			break
		}
	}
	out := make(domain.Document)
	if include {
		for k, v := range projection {
			if truthy(v) {
				if val, ok := doc[k]; ok {
					out[k] = val
				}
			}
		}
		if v, ok := projection[domain.FieldID]; !ok || truthy(v) {
			out[domain.FieldID] = doc[domain.FieldID]
		}
		return out
	}
	for k, v := range doc {
		if _, excluded := projection[k]; !excluded {
			out[k] = v
		}
	}
	return out
}

func operatorMap(v any) (map[string]any, bool) {
	m, ok := asMap(v)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case domain.Filter:
		return m, true
	case domain.Document:
		return m, true
	case domain.Update:
		return m, true
	}
	return nil, false
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	default:
		n, ok := toFloat(v)
		return ok && n != 0
	}
}

func equalValues(a, b any) bool {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x == y
		}
	}
	return reflect.DeepEqual(a, b)
}

func compareValues(a, b any) (int, bool) {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func addNumbers(current, delta any) (any, error) {
	if current == nil {
		current = int64(0)
	}
	ci, cInt := toInt(current)
	di, dInt := toInt(delta)
	if cInt && dInt {
		return ci + di, nil
	}
	cf, ok := toFloat(current)
	if !ok {
		return nil, fmt.Errorf("non-numeric field")
	}
	df, ok := toFloat(delta)
	if !ok {
		return nil, fmt.Errorf("non-numeric increment")
	}
	return cf + df, nil
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
