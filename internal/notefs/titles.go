package notefs

import (
	"strconv"
	"strings"
)

const conflictSuffix = " CONFLICTED COPY"

type nameCache struct {
	byName map[string]string
	byID   map[string]string
}

func newNameCache() *nameCache {
	return &nameCache{
		byName: map[string]string{},
		byID:   map[string]string{},
	}
}

func (c *nameCache) evict(id string) {
	if name, ok := c.byID[id]; ok {
		delete(c.byName, name)
		delete(c.byID, id)
	}
}

func (c *nameCache) install(name, id string) {
	c.byName[name] = id
	c.byID[id] = name
}

func (c *nameCache) names() []string {
	out := make([]string, 0, len(c.byName))
	for name := range c.byName {
		out = append(out, name)
	}
	return out
}

func (r *Replica) cacheFor(kind Kind) *nameCache {
	switch kind {
	case KindNote:
		return r.notes
	case KindTag:
		return r.tags
	}
	return nil
}

// allocate installs the display name of it, replacing whatever name the id
// held before. Deleted items and unnamed kinds end up without a name.
func (r *Replica) allocate(it *Item) {
	r.notes.evict(it.ID)
	r.tags.evict(it.ID)
	cache := r.cacheFor(it.Kind)
	if cache == nil || it.Deleted {
		return
	}
	base, _ := it.title()
	if base == "" {
		base = UntitledName
	}
	conflicted := it.conflictOf() != ""
	ext := ""
	if it.Kind == KindNote {
		ext = r.ext
	}
	for n := 1; ; n++ {
		name := candidateName(base, n, conflicted, ext)
		if owner, taken := cache.byName[name]; taken && owner != it.ID {
			continue
		}
		cache.install(name, it.ID)
		return
	}
}

func candidateName(base string, n int, conflicted bool, ext string) string {
	var b strings.Builder
	b.WriteString(base)
	if n > 1 {
		b.WriteString(strconv.Itoa(n))
	}
	if conflicted {
		b.WriteString(conflictSuffix)
	}
	return strings.ReplaceAll(b.String(), "/", "-") + ext
}
