package optional

// Optional is a type that represents an optional value
type Optional[T any] struct {
	value T
	isSet bool
}

// Set sets the optional value
func (o *Optional[T]) Set(v T) {
	o.value = v
	o.isSet = true
}

// Unset unsets the optional value and releases the held value
func (o *Optional[T]) Unset() {
	var zero T
	o.value = zero
	o.isSet = false
}

// Take returns the value and leaves the optional unset.
func (o *Optional[T]) Take() (T, bool) {
	v, ok := o.value, o.isSet
	o.Unset()
	return v, ok
}
