package core

import "unitcore/pkg/domain"

const widgetKind domain.EntityType = "widget"

// widget is the test entity used across the engine tests.
type widget struct {
	id      string
	version int64
	Name    string
	Count   int
}

func newWidget(name string) *widget { return &widget{Name: name} }

func persistedWidget(id string, version int64, name string) *widget {
	return &widget{id: id, version: version, Name: name}
}

func (w *widget) Kind() domain.EntityType { return widgetKind }
func (w *widget) ID() string              { return w.id }
func (w *widget) Version() int64          { return w.version }
func (w *widget) BindIdentity(id string)  { w.id = id }
func (w *widget) SetVersion(v int64)      { w.version = v }

func (w *widget) Fields() (map[string]any, error) {
	return map[string]any{"name": w.Name, "count": w.Count}, nil
}
