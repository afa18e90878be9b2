// Package secrets replaces vault:// references in configuration values.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Scheme prefixes every secret reference, e.g. vault://db/mongo#uri.
const Scheme = "vault://"

// Resolver turns a reference into its secret value.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, ref string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, ref string) (string, error) { return f(ctx, ref) }

// IsRef reports whether s is a secret reference.
func IsRef(s string) bool { return strings.HasPrefix(strings.TrimSpace(s), Scheme) }

// ReplacePlaceholders walks target (a non-nil pointer) and replaces every
// string field, slice element or map value holding a reference. It returns
// how many values were replaced.
func ReplacePlaceholders(ctx context.Context, target any, resolver Resolver) (int, error) {
	if target == nil || resolver == nil {
		return 0, nil
	}
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return 0, errors.New("target must be a non-nil pointer")
	}
	w := walker{ctx: ctx, resolver: resolver}
	err := w.walk(v.Elem())
	return w.replaced, err
}

type walker struct {
	ctx      context.Context
	resolver Resolver
	replaced int
}

// resolve returns the secret for s when s is a reference.
func (w *walker) resolve(s string) (string, bool, error) {
	if !IsRef(s) {
		return s, false, nil
	}
	ref := strings.TrimSpace(s)
	out, err := w.resolver.Resolve(w.ctx, ref)
	if err != nil {
		return "", false, fmt.Errorf("resolve %s: %w", ref, err)
	}
	w.replaced++
	return out, true, nil
}

func (w *walker) walk(v reflect.Value) error {
	switch v.Kind() {
	case reflect.String:
		if !v.CanSet() {
			return nil
		}
		out, ok, err := w.resolve(v.String())
		if err != nil {
			return err
		}
		if ok {
			v.SetString(out)
		}
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Pointer {
			return w.walk(v.Elem())
		}
		// interface values are not addressable; work on a copy
		cp := reflect.New(v.Elem().Type()).Elem()
		cp.Set(v.Elem())
		if err := w.walk(cp); err != nil {
			return err
		}
		if v.CanSet() {
			v.Set(cp)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			if err := w.walk(v.Field(i)); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := w.walk(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			cp := reflect.New(iter.Value().Type()).Elem()
			cp.Set(iter.Value())
			before := w.replaced
			if err := w.walk(cp); err != nil {
				return err
			}
			if w.replaced != before {
				v.SetMapIndex(iter.Key(), cp)
			}
		}
	}
	return nil
}
