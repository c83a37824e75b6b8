package template

import "fmt"

// Definition is the serialisable form of a template used in configuration.
type Definition struct {
	Key        string  `json:"key" yaml:"key"`
	Pattern    string  `json:"pattern" yaml:"pattern"`
	BaseWeight float64 `json:"baseWeight" yaml:"baseWeight"`
}

// DefaultDefinitions lists the built-in templates. Common shapes are mostly
// taken, so they carry the lowest prior.
var DefaultDefinitions = []Definition{
	{Key: "LDDD", Pattern: "LDDD", BaseWeight: 1},
	{Key: "LLDD", Pattern: "LLDD", BaseWeight: 1},
	{Key: "DDDD", Pattern: "DDDD", BaseWeight: 1},
	{Key: "L_DD", Pattern: "L_DD", BaseWeight: 4},
	{Key: "L.LD", Pattern: "L.LD", BaseWeight: 4},
	{Key: "RZRD", Pattern: "RDRD", BaseWeight: 5},
}

// Catalog is an ordered, immutable set of templates. Iteration order is the
// insertion order and is what weighted selection walks.
type Catalog struct {
	templates []*Template
	index     map[string]int
}

// NewCatalog builds a catalog, rejecting duplicate keys.
func NewCatalog(templates ...*Template) (*Catalog, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("%w: empty catalog", ErrInvalidTemplate)
	}
	c := &Catalog{index: make(map[string]int, len(templates))}
	for _, t := range templates {
		if t == nil {
			return nil, fmt.Errorf("%w: nil template", ErrInvalidTemplate)
		}
		if _, ok := c.index[t.Key]; ok {
			return nil, fmt.Errorf("%w: duplicate key %s", ErrInvalidTemplate, t.Key)
		}
		c.index[t.Key] = len(c.templates)
		c.templates = append(c.templates, t)
	}
	return c, nil
}

// FromDefinitions parses definitions into a catalog.
func FromDefinitions(defs []Definition) (*Catalog, error) {
	templates := make([]*Template, 0, len(defs))
	for _, def := range defs {
		t, err := Parse(def.Key, def.Pattern, def.BaseWeight)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return NewCatalog(templates...)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := FromDefinitions(DefaultDefinitions)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the template registered under key.
func (c *Catalog) Lookup(key string) (*Template, bool) {
	i, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return c.templates[i], true
}

// At returns the i-th template in catalog order.
func (c *Catalog) At(i int) *Template { return c.templates[i] }

// Len returns the number of templates.
func (c *Catalog) Len() int { return len(c.templates) }

// Keys returns template keys in catalog order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.templates))
	for i, t := range c.templates {
		keys[i] = t.Key
	}
	return keys
}

// Templates returns a copy of the ordered template list.
func (c *Catalog) Templates() []*Template {
	return append([]*Template(nil), c.templates...)
}
