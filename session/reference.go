package session

import (
	"encoding/json"
	"sort"
)

// Reference points the prompt assembler at a file whose contents should
// ride along with every prompt. TTL counts down once per loop iteration;
// at zero the reference is disabled rather than removed, so it can be
// re-enabled later. Persistent references never decay.
type Reference struct {
	Path     string `json:"path"`
	Ttl      *int   `json:"ttl"`
	Disabled bool   `json:"disabled"`
	Persist  bool   `json:"persist"`
}

// Active reports whether the assembler should include this reference.
func (r *Reference) Active() bool {
	return !r.Disabled && (r.Ttl == nil || *r.Ttl > 0)
}

// EffectiveTtl resolves a nil TTL to the collection default.
func (r *Reference) EffectiveTtl(defaultTtl int) int {
	if r.Ttl == nil {
		return defaultTtl
	}
	return *r.Ttl
}

// UnmarshalJSON accepts both the object form and the legacy bare-string
// form (a path), which older session files used.
func (r *Reference) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var path string
		if err := json.Unmarshal(data, &path); err != nil {
			return err
		}
		*r = Reference{Path: path}
		return nil
	}
	type plain Reference
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Reference(p)
	return nil
}

// ReferenceList maintains the sorted reference collection: active entries
// in descending effective TTL order, disabled entries at the end, ties
// stable.
type ReferenceList []Reference

// Sort re-establishes the collection order.
func (l ReferenceList) Sort(defaultTtl int) {
	sort.SliceStable(l, func(i, j int) bool {
		a, b := &l[i], &l[j]
		if a.Active() != b.Active() {
			return a.Active()
		}
		if !a.Active() {
			return false
		}
		return a.EffectiveTtl(defaultTtl) > b.EffectiveTtl(defaultTtl)
	})
}

// Find returns the reference with the given path.
func (l ReferenceList) Find(path string) *Reference {
	for i := range l {
		if l[i].Path == path {
			return &l[i]
		}
	}
	return nil
}

// Active returns the active references in collection order.
func (l ReferenceList) Active() []Reference {
	var out []Reference
	for _, r := range l {
		if r.Active() {
			out = append(out, r)
		}
	}
	return out
}

// Add registers path. The path is the key: re-adding an existing path is a
// no-op regardless of the other fields. Returns whether the list changed.
func (l *ReferenceList) Add(path string, ttl *int, persist bool, defaultTtl int) bool {
	if path == "" || l.Find(path) != nil {
		return false
	}
	*l = append(*l, Reference{Path: path, Ttl: ttl, Persist: persist})
	l.Sort(defaultTtl)
	return true
}

// Remove deletes path from the collection.
func (l *ReferenceList) Remove(path string) bool {
	for i := range *l {
		if (*l)[i].Path == path {
			*l = append((*l)[:i], (*l)[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateTtl sets the TTL for path. A value of zero or less disables the
// reference; a positive value re-enables it.
func (l ReferenceList) UpdateTtl(path string, ttl int, defaultTtl int) bool {
	r := l.Find(path)
	if r == nil {
		return false
	}
	if ttl <= 0 {
		zero := 0
		r.Ttl = &zero
		r.Disabled = true
	} else {
		v := ttl
		r.Ttl = &v
		r.Disabled = false
	}
	l.Sort(defaultTtl)
	return true
}

// DecrementAllTtl ages every non-persistent, non-disabled reference by one
// iteration. A nil TTL starts from the default. Hitting zero disables the
// reference. The count of newly disabled references is returned.
func (l ReferenceList) DecrementAllTtl(defaultTtl int) int {
	disabled := 0
	for i := range l {
		r := &l[i]
		if r.Persist || r.Disabled {
			continue
		}
		ttl := r.EffectiveTtl(defaultTtl) - 1
		if ttl <= 0 {
			ttl = 0
			r.Disabled = true
			disabled++
		}
		r.Ttl = &ttl
	}
	l.Sort(defaultTtl)
	return disabled
}

// ToggleDisabled flips the disabled flag for path.
func (l ReferenceList) ToggleDisabled(path string, defaultTtl int) bool {
	r := l.Find(path)
	if r == nil {
		return false
	}
	r.Disabled = !r.Disabled
	l.Sort(defaultTtl)
	return true
}

// UpdatePersist sets the persist flag for path.
func (l ReferenceList) UpdatePersist(path string, persist bool, defaultTtl int) bool {
	r := l.Find(path)
	if r == nil {
		return false
	}
	r.Persist = persist
	l.Sort(defaultTtl)
	return true
}

// Copy returns a deep copy of the list.
func (l ReferenceList) Copy() ReferenceList {
	out := make(ReferenceList, 0, len(l))
	for _, r := range l {
		cp := r
		if r.Ttl != nil {
			v := *r.Ttl
			cp.Ttl = &v
		}
		out = append(out, cp)
	}
	return out
}

// TodoItem is one entry of a session's working checklist.
type TodoItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Checked     bool   `json:"checked"`
}

// UnmarshalJSON accepts both the object form and the legacy bare-string
// form (a title).
func (t *TodoItem) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var title string
		if err := json.Unmarshal(data, &title); err != nil {
			return err
		}
		*t = TodoItem{Title: title}
		return nil
	}
	type plain TodoItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = TodoItem(p)
	return nil
}
