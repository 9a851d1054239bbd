package fusefs

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

type dirKind int

const (
	dirRoot dirKind = iota
	dirContainer
	dirTags
	dirTag
)

// dirNode serves every directory. Tag directories hold the tag id so a
// rename elsewhere does not strand them.
type dirNode struct {
	fs.Inode
	view      *View
	kind      dirKind
	container string
	tagID     string
}

type noteNode struct {
	fs.Inode
	view *View
	id   string
}

type linkNode struct {
	fs.Inode
	view   *View
	tagID  string
	noteID string
}

var (
	_ = (fs.NodeReaddirer)((*dirNode)(nil))
	_ = (fs.NodeLookuper)((*dirNode)(nil))
	_ = (fs.NodeGetattrer)((*dirNode)(nil))
	_ = (fs.NodeCreater)((*dirNode)(nil))
	_ = (fs.NodeUnlinker)((*dirNode)(nil))
	_ = (fs.NodeMkdirer)((*dirNode)(nil))
	_ = (fs.NodeRmdirer)((*dirNode)(nil))
	_ = (fs.NodeRenamer)((*dirNode)(nil))
	_ = (fs.NodeSymlinker)((*dirNode)(nil))

	_ = (fs.NodeGetattrer)((*noteNode)(nil))
	_ = (fs.NodeSetattrer)((*noteNode)(nil))
	_ = (fs.NodeOpener)((*noteNode)(nil))
	_ = (fs.NodeReader)((*noteNode)(nil))
	_ = (fs.NodeWriter)((*noteNode)(nil))
	_ = (fs.NodeFlusher)((*noteNode)(nil))
	_ = (fs.NodeFsyncer)((*noteNode)(nil))

	_ = (fs.NodeReadlinker)((*linkNode)(nil))
	_ = (fs.NodeGetattrer)((*linkNode)(nil))
)

func (d *dirNode) tagName() (string, syscall.Errno) {
	name, err := d.view.TagName(d.tagID)
	if err != nil {
		return "", d.view.errno("tag name", err)
	}
	return name, 0
}

func (d *dirNode) entries() ([]Entry, syscall.Errno) {
	switch d.kind {
	case dirRoot:
		return d.view.Root(), 0
	case dirContainer:
		entries, err := d.view.List(d.container)
		return entries, d.view.errno("list", err)
	case dirTags:
		return d.view.Tags(), 0
	case dirTag:
		name, errno := d.tagName()
		if errno != 0 {
			return nil, errno
		}
		entries, err := d.view.TagLinks(name)
		return entries, d.view.errno("list tag", err)
	}
	return nil, unix.ENOENT
}

func (d *dirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, errno := d.entries()
	if errno != 0 {
		return nil, errno
	}
	list := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		list = append(list, fuse.DirEntry{Name: e.Name, Ino: e.Ino, Mode: modeFor(e.Type)})
	}
	return fs.NewListDirStream(list), 0
}

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	var (
		entry Entry
		err   error
	)
	switch d.kind {
	case dirRoot:
		found := false
		for _, e := range d.view.Root() {
			if e.Name == name {
				entry, found = e, true
			}
		}
		if !found {
			return nil, unix.ENOENT
		}
	case dirContainer:
		entry, err = d.view.Lookup(d.container, name)
	case dirTags:
		entry, err = d.view.LookupTag(name)
	case dirTag:
		tagName, errno := d.tagName()
		if errno != 0 {
			return nil, errno
		}
		entry, err = d.view.LookupLink(tagName, name)
	}
	if err != nil {
		return nil, d.view.errno("lookup", err)
	}
	fillAttr(entry, &out.Attr)
	return d.child(ctx, entry), 0
}

func (d *dirNode) child(ctx context.Context, e Entry) *fs.Inode {
	var node fs.InodeEmbedder
	switch e.Type {
	case EntryFile:
		node = &noteNode{view: d.view, id: e.ID}
	case EntrySymlink:
		node = &linkNode{view: d.view, tagID: d.tagID, noteID: e.ID}
	default:
		sub := &dirNode{view: d.view}
		switch d.kind {
		case dirRoot:
			if e.Name == DirTags {
				sub.kind = dirTags
			} else {
				sub.kind, sub.container = dirContainer, e.Name
			}
		case dirTags:
			sub.kind, sub.tagID = dirTag, e.ID
		}
		node = sub
	}
	return d.NewInode(ctx, node, fs.StableAttr{Mode: modeFor(e.Type), Ino: e.Ino})
}

func (d *dirNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	switch d.kind {
	case dirRoot:
		fillAttr(Entry{Type: EntryDir, Ino: 1, Modified: d.view.started, Created: d.view.started}, &out.Attr)
	case dirContainer:
		fillAttr(d.view.staticDir(d.container), &out.Attr)
	case dirTags:
		fillAttr(d.view.staticDir(DirTags), &out.Attr)
	case dirTag:
		entry, err := d.view.Tag(d.tagID)
		if err != nil {
			return d.view.errno("getattr", err)
		}
		fillAttr(entry, &out.Attr)
	}
	return 0
}

func (d *dirNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	if d.kind != dirContainer {
		return nil, nil, 0, unix.EPERM
	}
	entry, err := d.view.Create(d.container, name)
	if err != nil {
		return nil, nil, 0, d.view.errno("create", err)
	}
	fillAttr(entry, &out.Attr)
	return d.child(ctx, entry), nil, fuse.FOPEN_DIRECT_IO, 0
}

func (d *dirNode) Unlink(ctx context.Context, name string) syscall.Errno {
	switch d.kind {
	case dirContainer:
		return d.view.errno("unlink", d.view.Remove(d.container, name))
	case dirTag:
		tagName, errno := d.tagName()
		if errno != 0 {
			return errno
		}
		return d.view.errno("unlink", d.view.Unlink(tagName, name))
	}
	return unix.EPERM
}

func (d *dirNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if d.kind != dirTags {
		return nil, unix.EPERM
	}
	entry, err := d.view.MakeTag(name)
	if err != nil {
		return nil, d.view.errno("mkdir", err)
	}
	fillAttr(entry, &out.Attr)
	return d.child(ctx, entry), 0
}

func (d *dirNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	if d.kind != dirTags {
		return unix.EPERM
	}
	return d.view.errno("rmdir", d.view.RemoveTag(name))
}

func (d *dirNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	dest, ok := newParent.(*dirNode)
	if !ok {
		return unix.EXDEV
	}
	switch {
	case d.kind == dirContainer && dest.kind == dirContainer:
		return d.view.errno("rename", d.view.Rename(d.container, name, dest.container, newName))
	case d.kind == dirTags && dest.kind == dirTags:
		return d.view.errno("rename tag", d.view.RenameTag(name, newName))
	case d.kind == dirTag && dest.kind == dirTag:
		from, errno := d.tagName()
		if errno != 0 {
			return errno
		}
		to, errno := dest.tagName()
		if errno != 0 {
			return errno
		}
		return d.view.errno("move link", d.view.MoveLink(from, name, to))
	}
	return unix.EXDEV
}

func (d *dirNode) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if d.kind != dirTag {
		return nil, unix.EPERM
	}
	tagName, errno := d.tagName()
	if errno != 0 {
		return nil, errno
	}
	entry, err := d.view.Link(tagName, target, name)
	if err != nil {
		return nil, d.view.errno("symlink", err)
	}
	fillAttr(entry, &out.Attr)
	return d.child(ctx, entry), 0
}

func (n *noteNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	entry, err := n.view.Note(n.id)
	if err != nil {
		return n.view.errno("getattr", err)
	}
	fillAttr(entry, &out.Attr)
	return 0
}

func (n *noteNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if err := n.view.Truncate(n.id, size); err != nil {
			return n.view.errno("truncate", err)
		}
	} else if _, ok := in.GetMTime(); ok {
		if err := n.view.Touch(n.id); err != nil {
			return n.view.errno("touch", err)
		}
	}
	return n.Getattr(ctx, f, out)
}

func (n *noteNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&syscall.O_TRUNC != 0 {
		if err := n.view.Truncate(n.id, 0); err != nil {
			return nil, 0, n.view.errno("open", err)
		}
	}
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (n *noteNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := n.view.Read(n.id, off, len(dest))
	if err != nil {
		return nil, n.view.errno("read", err)
	}
	return fuse.ReadResultData(data), 0
}

func (n *noteNode) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	written, err := n.view.Write(n.id, data, off)
	if err != nil {
		return 0, n.view.errno("write", err)
	}
	return uint32(written), 0
}

func (n *noteNode) Flush(ctx context.Context, f fs.FileHandle) syscall.Errno {
	return 0
}

func (n *noteNode) Fsync(ctx context.Context, f fs.FileHandle, flags uint32) syscall.Errno {
	return 0
}

func (l *linkNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	entry, errno := l.entry()
	if errno != 0 {
		return nil, errno
	}
	return []byte(entry.Target), 0
}

func (l *linkNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	entry, errno := l.entry()
	if errno != 0 {
		return errno
	}
	fillAttr(entry, &out.Attr)
	return 0
}

func (l *linkNode) entry() (Entry, syscall.Errno) {
	tagName, err := l.view.TagName(l.tagID)
	if err != nil {
		return Entry{}, l.view.errno("readlink", err)
	}
	note, err := l.view.Note(l.noteID)
	if err != nil {
		return Entry{}, l.view.errno("readlink", err)
	}
	entry, err := l.view.LookupLink(tagName, note.Name)
	return entry, l.view.errno("readlink", err)
}

func modeFor(t EntryType) uint32 {
	switch t {
	case EntryFile:
		return fuse.S_IFREG
	case EntrySymlink:
		return fuse.S_IFLNK
	}
	return fuse.S_IFDIR
}

func fillAttr(e Entry, out *fuse.Attr) {
	switch e.Type {
	case EntryFile:
		out.Mode = fuse.S_IFREG | 0o644
		out.Nlink = 1
	case EntrySymlink:
		out.Mode = fuse.S_IFLNK | 0o777
		out.Nlink = 1
	default:
		out.Mode = fuse.S_IFDIR | 0o755
		out.Nlink = 2
	}
	out.Ino = e.Ino
	out.Size = e.Size
	out.Owner = fuse.Owner{Uid: uint32(unix.Getuid()), Gid: uint32(unix.Getgid())}
	modified := e.Modified
	if modified.IsZero() {
		modified = time.Now()
	}
	created := e.Created
	if created.IsZero() {
		created = modified
	}
	out.SetTimes(&modified, &modified, &created)
}
