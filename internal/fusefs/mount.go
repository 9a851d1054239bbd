package fusefs

import (
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

const defaultCacheTimeout = time.Second

type MountOptions struct {
	Debug      bool
	AllowOther bool
	// CacheTimeout bounds how long the kernel trusts names and attributes.
	// Changes pulled in by sync show up after at most this long.
	CacheTimeout time.Duration
}

// Mount serves view at dir. Callers wait on the returned server and unmount
// it when done.
func Mount(dir string, view *View, opts MountOptions) (*fuse.Server, error) {
	timeout := opts.CacheTimeout
	if timeout <= 0 {
		timeout = defaultCacheTimeout
	}
	negative := time.Duration(0)
	root := &dirNode{view: view, kind: dirRoot}
	return fs.Mount(dir, root, &fs.Options{
		MountOptions: fuse.MountOptions{
			AllowOther: opts.AllowOther,
			Debug:      opts.Debug,
			FsName:     "notefs",
			Name:       "notefs",
		},
		EntryTimeout:    &timeout,
		AttrTimeout:     &timeout,
		NegativeTimeout: &negative,
	})
}
