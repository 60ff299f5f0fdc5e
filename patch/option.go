package patch

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrValueValidation is wrapped by OptionValidationError.
var ErrValueValidation = errors.New("value validation failed")

// OptionValidationError is returned when an option value is rejected.
type OptionValidationError struct {
	Key   string
	Value interface{}
}

func (e *OptionValidationError) Error() string {
	return fmt.Sprintf("invalid value %#v for option %s", e.Value, e.Key)
}

func (e *OptionValidationError) Unwrap() error {
	return ErrValueValidation
}

// AnyOption is implemented by every Option[T], and is used to configure
// options by key without knowing their type.
type AnyOption interface {
	OptionKey() string
	OptionTitle() string
	// GetAny returns the current value.
	GetAny() interface{}
	// SetAny converts v to the option's type (numeric types are converted
	// between each other) and sets it.
	SetAny(v interface{}) error
	// IsSet returns true if the option has a value other than the default.
	IsSet() bool
	// Missing returns true if the option is required, but has neither a value
	// nor a usable default.
	Missing() bool
	Reset()
}

// Option is a named, validated configuration value for a patch.
//
// An option starts out unset, where Get returns Default. It becomes set the
// first time a value other than Default is accepted by Set or SetOrGet. A
// value is accepted if it equals Default, is one of Values, or is accepted by
// Validator. If Validator is nil, it accepts everything when Values is empty,
// and nothing otherwise.
//
// Setting Default on a set option makes it unset again, so a later SetOrGet
// will replace it with its fallback.
type Option[T comparable] struct {
	Key         string
	Default     T
	Values      map[string]T // title to value
	Title       string
	Description string
	Required    bool
	Validator   func(T) bool

	value T
	set   bool
}

// Get returns the current value.
func (o *Option[T]) Get() T {
	if o.set {
		return o.value
	}
	return o.Default
}

// Set validates and sets the value. If the value is rejected, the current
// value is left unchanged and an *OptionValidationError is returned. Setting
// the value to Default unsets it.
func (o *Option[T]) Set(v T) error {
	if !o.accepts(v) {
		return &OptionValidationError{Key: o.Key, Value: v}
	}
	if v == o.Default {
		o.Reset()
		return nil
	}
	o.value, o.set = v, true
	return nil
}

// SetOrGet returns the current value if it is set. Otherwise, it sets the
// value to fallback and returns it. Once set, later calls return the same
// value regardless of the fallback.
func (o *Option[T]) SetOrGet(fallback T) (T, error) {
	if o.set {
		return o.value, nil
	}
	if err := o.Set(fallback); err != nil {
		var zero T
		return zero, err
	}
	return o.Get(), nil
}

// IsSet returns true if the option has been set to a value other than Default.
func (o *Option[T]) IsSet() bool {
	return o.set
}

// Reset returns the option to the unset state.
func (o *Option[T]) Reset() {
	var zero T
	o.value, o.set = zero, false
}

// Missing implements AnyOption.
func (o *Option[T]) Missing() bool {
	var zero T
	return o.Required && !o.set && o.Default == zero
}

// OptionKey implements AnyOption.
func (o *Option[T]) OptionKey() string {
	return o.Key
}

// OptionTitle implements AnyOption.
func (o *Option[T]) OptionTitle() string {
	if o.Title == "" {
		return o.Key
	}
	return o.Title
}

// GetAny implements AnyOption.
func (o *Option[T]) GetAny() interface{} {
	return o.Get()
}

// SetAny implements AnyOption.
func (o *Option[T]) SetAny(v interface{}) error {
	if t, ok := v.(T); ok {
		return o.Set(t)
	}
	var t T
	tv, vv := reflect.ValueOf(&t).Elem(), reflect.ValueOf(v)
	if vv.IsValid() && isNumeric(tv.Kind()) && isNumeric(vv.Kind()) {
		tv.Set(vv.Convert(tv.Type()))
		if reflect.ValueOf(t).Convert(vv.Type()).Interface() != v {
			return fmt.Errorf("option %s: %v overflows %T", o.Key, v, t)
		}
		return o.Set(t)
	}
	return fmt.Errorf("option %s: cannot use %#v (%T) as %T", o.Key, v, v, t)
}

func (o *Option[T]) accepts(v T) bool {
	if v == o.Default {
		return true
	}
	for _, a := range o.Values {
		if v == a {
			return true
		}
	}
	if o.Validator == nil {
		return len(o.Values) == 0
	}
	return o.Validator(v)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
