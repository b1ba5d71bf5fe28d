package flatten

// Optional is a value that may be absent. The zero value is absent.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent value
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// FromPtr is present when p is non-nil
func FromPtr[T any](p *T) Optional[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

// Get returns the value and whether it is present
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Present reports whether a value is set
func (o Optional[T]) Present() bool {
	return o.ok
}

// OrElse returns the value, or def when absent
func (o Optional[T]) OrElse(def T) T {
	if !o.ok {
		return def
	}
	return o.value
}

// Cell returns the value as a table cell, nil when absent
func (o Optional[T]) Cell() any {
	if !o.ok {
		return nil
	}
	return o.value
}

// Lookup walks root key by key. It is absent as soon as a key is missing or an
// intermediate value is not a JSON object.
func Lookup(root any, keys ...string) Optional[any] {
	cur := root
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return None[any]()
		}
		if cur, ok = m[k]; !ok {
			return None[any]()
		}
	}
	if cur == nil {
		return None[any]()
	}
	return Some(cur)
}

// LookupString is Lookup narrowed to a string leaf
func LookupString(root any, keys ...string) Optional[string] {
	v, ok := Lookup(root, keys...).Get()
	if !ok {
		return None[string]()
	}
	s, ok := v.(string)
	if !ok {
		return None[string]()
	}
	return Some(s)
}
