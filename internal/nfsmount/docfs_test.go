package nfsmount

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/stencil/internal/document"
	"github.com/agentic-research/stencil/internal/props"
)

type testDoc struct {
	doc              *document.Document
	room, lamp, dup1 string
}

func newTestDoc(t *testing.T) testDoc {
	t.Helper()
	doc := document.New()
	room, err := doc.Create(document.NodeSpec{Name: "Room"})
	require.NoError(t, err)
	lamp, err := doc.Create(document.NodeSpec{Parent: room.ID, Name: "lamp", TypeName: "Light",
		Props: []props.Field{{Name: "level", Value: props.Double(0.5)}}})
	require.NoError(t, err)
	dup, err := doc.Create(document.NodeSpec{Parent: room.ID, Name: "lamp"})
	require.NoError(t, err)
	_, err = doc.Create(document.NodeSpec{Parent: room.ID, Name: "props.json"})
	require.NoError(t, err)
	return testDoc{doc: doc, room: room.ID, lamp: lamp.ID, dup1: dup.ID}
}

func newTestFS(t *testing.T) (*DocFS, testDoc) {
	t.Helper()
	td := newTestDoc(t)
	snap, err := Build(td.doc)
	require.NoError(t, err)
	return NewDocFS(snap), td
}

func readAll(t *testing.T, fs billy.Filesystem, p string) []byte {
	t.Helper()
	f, err := fs.Open(p)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	return b
}

func names(infos []os.FileInfo) []string {
	out := make([]string, len(infos))
	for i, fi := range infos {
		out[i] = fi.Name()
	}
	return out
}

func TestStatRoot(t *testing.T) {
	fs, _ := newTestFS(t)
	info, err := fs.Stat("/")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestReadDir_Layout(t *testing.T) {
	fs, _ := newTestFS(t)

	root, err := fs.ReadDir("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"_document.json", "Room"}, names(root))

	room, err := fs.ReadDir("/Room")
	require.NoError(t, err)
	assert.Equal(t, []string{"node.json", "props.json", "lamp", "lamp~2", "props.json~2"}, names(room))

	_, err = fs.ReadDir("/Room/node.json")
	assert.Error(t, err)
	_, err = fs.ReadDir("/missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNodeFiles(t *testing.T) {
	fs, td := newTestFS(t)

	var info nodeInfo
	require.NoError(t, json.Unmarshal(readAll(t, fs, "/Room/lamp/node.json"), &info))
	assert.Equal(t, td.lamp, info.ID)
	assert.Equal(t, "Light", info.Type)
	assert.False(t, info.Generated)

	var body map[string]any
	require.NoError(t, json.Unmarshal(readAll(t, fs, "/Room/lamp/props.json"), &body))
	assert.Equal(t, "lamp", body["name"])
	assert.Equal(t, 0.5, body["level"])

	var dup nodeInfo
	require.NoError(t, json.Unmarshal(readAll(t, fs, "Room/lamp~2/node.json"), &dup))
	assert.Equal(t, td.dup1, dup.ID)

	st, err := fs.Stat("/Room/lamp/props.json")
	require.NoError(t, err)
	assert.False(t, st.IsDir())
	assert.Equal(t, int64(len(readAll(t, fs, "/Room/lamp/props.json"))), st.Size())
}

func TestDocumentFile(t *testing.T) {
	fs, _ := newTestFS(t)
	var all map[string]any
	require.NoError(t, json.Unmarshal(readAll(t, fs, "/_document.json"), &all))
	assert.Len(t, all["nodes"], 4)
}

func TestReadAtAndSeek(t *testing.T) {
	fs, _ := newTestFS(t)
	body := readAll(t, fs, "/Room/props.json")

	f, err := fs.Open("/Room/props.json")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, body[2:2+n], buf[:n])

	pos, err := f.Seek(1, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos)
	n, _ = f.Read(buf)
	assert.Equal(t, body[1:1+n], buf[:n])
}

func TestSwap(t *testing.T) {
	fs, td := newTestFS(t)
	require.NoError(t, td.doc.SetValue(props.H(td.lamp, "level"), props.Double(1)))
	require.NoError(t, td.doc.Delete(td.dup1))

	snap, err := Build(td.doc)
	require.NoError(t, err)
	fs.Swap(snap)

	var body map[string]any
	require.NoError(t, json.Unmarshal(readAll(t, fs, "/Room/lamp/props.json"), &body))
	assert.Equal(t, 1.0, body["level"])
	_, err = fs.Stat("/Room/lamp~2")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadOnly(t *testing.T) {
	fs, _ := newTestFS(t)

	_, err := fs.Create("/new")
	assert.Equal(t, errReadOnly, err)
	_, err = fs.OpenFile("/Room/props.json", os.O_RDWR, 0)
	assert.ErrorIs(t, err, errReadOnly)
	assert.Equal(t, errReadOnly, fs.MkdirAll("/dir", 0o755))
	assert.Equal(t, errReadOnly, fs.Remove("/Room/props.json"))
	assert.Equal(t, errReadOnly, fs.Rename("/Room", "/Hall"))

	f, err := fs.Open("/Room/props.json")
	require.NoError(t, err)
	_, err = f.Write([]byte("x"))
	assert.Equal(t, errReadOnly, err)

	_, err = fs.Open("/Room")
	assert.Error(t, err)

	caps := fs.Capabilities()
	assert.NotZero(t, caps&billy.ReadCapability)
	assert.NotZero(t, caps&billy.SeekCapability)
	assert.Zero(t, caps&billy.WriteCapability)
}

func TestChroot(t *testing.T) {
	fs, _ := newTestFS(t)
	sub, err := fs.Chroot("/Room")
	require.NoError(t, err)
	infos, err := sub.ReadDir("/lamp")
	require.NoError(t, err)
	assert.Equal(t, []string{"node.json", "props.json"}, names(infos))
	assert.Equal(t, "a/b", fs.Join("a", "b"))
}

func TestNFSServerStarts(t *testing.T) {
	fs, _ := newTestFS(t)

	srv, err := NewServer(fs, "127.0.0.1:0", hclog.NewNullLogger())
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()
	assert.Positive(t, srv.Port())

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", srv.Port()))
	require.NoError(t, err)
	_ = conn.Close()
}

func TestMountArgs(t *testing.T) {
	args, err := MountArgs(2049, "/mnt/doc")
	if err != nil {
		t.Skip(err)
	}
	assert.Equal(t, "mount", args[1])
	assert.Equal(t, "/mnt/doc", args[len(args)-1])
}
