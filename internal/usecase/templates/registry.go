package templates

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"guest-messaging/internal/domain"
)

// Vars — переменные шаблона. Допустимы строки и числа.
type Vars map[string]any

// RenderFunc формирует текст сообщения из переменных.
type RenderFunc func(vars Vars) string

// Variants — варианты шаблона по профилям. Каждый профиль, включая Default, обязателен.
type Variants struct {
	Family    RenderFunc
	Adventure RenderFunc
	Traveler  RenderFunc
	Escape    RenderFunc
	Default   RenderFunc
}

// For возвращает вариант для профиля; неизвестный профиль получает Default.
func (v Variants) For(code domain.ProfileCode) (RenderFunc, domain.ProfileCode) {
	switch code {
	case domain.ProfileFamily:
		return v.Family, code
	case domain.ProfileAdventure:
		return v.Adventure, code
	case domain.ProfileTraveler:
		return v.Traveler, code
	case domain.ProfileEscape:
		return v.Escape, code
	default:
		return v.Default, domain.ProfileDefault
	}
}

// Same использует один текст для всех профилей.
func Same(render RenderFunc) Variants {
	return Variants{Family: render, Adventure: render, Traveler: render, Escape: render, Default: render}
}

func (v Variants) validate() error {
	for _, code := range domain.AllProfiles {
		if fn, _ := v.For(code); fn == nil {
			return fmt.Errorf("нет варианта для профиля %s", code)
		}
	}
	return nil
}

// Template — именованный шаблон сообщения.
type Template struct {
	Name     string
	Variants Variants
}

// Rendered — результат подстановки.
type Rendered struct {
	Name    string             `json:"name"`
	Profile domain.ProfileCode `json:"profile"`
	Body    string             `json:"body"`
}

// Registry хранит шаблоны. После создания не изменяется.
type Registry struct {
	templates map[string]Template
}

// NewRegistry проверяет шаблоны и собирает реестр.
func NewRegistry(templates ...Template) (*Registry, error) {
	r := &Registry{templates: make(map[string]Template, len(templates))}
	for _, tpl := range templates {
		name := strings.TrimSpace(tpl.Name)
		if name == "" {
			return nil, errors.New("templates: пустое имя шаблона")
		}
		if _, dup := r.templates[name]; dup {
			return nil, fmt.Errorf("templates: шаблон %q зарегистрирован дважды", name)
		}
		if err := tpl.Variants.validate(); err != nil {
			return nil, fmt.Errorf("templates: шаблон %q: %w", name, err)
		}
		tpl.Name = name
		r.templates[name] = tpl
	}
	return r, nil
}

// MustRegistry как NewRegistry, но паникует на ошибке. Для статических каталогов.
func MustRegistry(templates ...Template) *Registry {
	r, err := NewRegistry(templates...)
	if err != nil {
		panic(err)
	}
	return r
}

// GetTemplate рендерит шаблон для профиля.
func (r *Registry) GetTemplate(name string, profile domain.ProfileCode, vars Vars) (Rendered, error) {
	tpl, ok := r.templates[strings.TrimSpace(name)]
	if !ok {
		return Rendered{}, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, name)
	}
	render, used := tpl.Variants.For(profile)
	return Rendered{Name: tpl.Name, Profile: used, Body: render(vars)}, nil
}

// Has сообщает, зарегистрирован ли шаблон.
func (r *Registry) Has(name string) bool {
	_, ok := r.templates[strings.TrimSpace(name)]
	return ok
}

// Names возвращает имена шаблонов по алфавиту.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Interpolate подставляет {ключ} из vars. Незнакомые плейсхолдеры остаются как есть.
func Interpolate(text string, vars Vars) string {
	if len(vars) == 0 {
		return text
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", formatValue(vars[k]))
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// text — вариант, который только подставляет переменные.
func text(body string) RenderFunc {
	return func(vars Vars) string {
		return Interpolate(body, vars)
	}
}
