package httpctx

// Key identifies a typed value in a Context's state.
// Two keys are distinct even when they share a name.
type Key[T any] struct {
	id *keyID
}

type keyID struct {
	name string
}

// NewKey creates a new state key for values of type T.
func NewKey[T any](name string) Key[T] {
	return Key[T]{id: &keyID{name: name}}
}

// Name returns the name the key was created with.
func (k Key[T]) Name() string {
	if k.id == nil {
		return ""
	}
	return k.id.name
}

// SetState stores v under k in the context's state.
func SetState[T any](c *Context, k Key[T], v T) {
	if c.state == nil {
		c.state = make(map[*keyID]any)
	}
	c.state[k.id] = v
}

// GetState returns the value stored under k, if any.
func GetState[T any](c *Context, k Key[T]) (T, bool) {
	v, ok := c.state[k.id].(T)
	return v, ok
}

// MustState returns the value stored under k, or the zero value of T.
func MustState[T any](c *Context, k Key[T]) T {
	v, _ := GetState(c, k)
	return v
}

// DeleteState removes the value stored under k.
func DeleteState[T any](c *Context, k Key[T]) {
	delete(c.state, k.id)
}

// StateNames returns the names of every key currently set, for debugging.
func (c *Context) StateNames() []string {
	names := make([]string, 0, len(c.state))
	for id := range c.state {
		names = append(names, id.name)
	}
	return names
}
