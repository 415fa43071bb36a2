package fileops_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wentf9/sshgate/pkg/fileops"
	"github.com/wentf9/sshgate/pkg/sshpool"
	"github.com/wentf9/sshgate/pkg/testutil"
)

func newClient(t *testing.T) *fileops.Client {
	t.Helper()
	srv := testutil.NewSSHServer(t)
	pool := sshpool.NewPool(5, 5*time.Second, sshpool.WithoutKeepAlive())
	t.Cleanup(pool.DisconnectAll)
	sess, err := pool.Acquire(context.Background(), srv.Identity("alice"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	c, err := fileops.NewClient(sess)
	if err != nil {
		t.Fatalf("sftp client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	c := newClient(t)
	dir := t.TempDir()
	content := []byte("line one\nline two\n")

	local := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(local, content, 0644); err != nil {
		t.Fatal(err)
	}
	remote := filepath.Join(dir, "uploaded.txt")
	if err := c.Upload(context.Background(), local, remote, nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	got, err := os.ReadFile(remote)
	if err != nil {
		t.Fatalf("read uploaded: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("uploaded content = %q, want %q", got, content)
	}

	back := filepath.Join(dir, "downloaded.txt")
	var transferred int
	err = c.Download(context.Background(), remote, back, func(n int) { transferred += n })
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, err = os.ReadFile(back)
	if err != nil {
		t.Fatalf("read downloaded: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("downloaded content = %q, want %q", got, content)
	}
	if transferred != len(content) {
		t.Errorf("progress reported %d bytes, want %d", transferred, len(content))
	}
}

func TestUploadIntoDirectory(t *testing.T) {
	c := newClient(t)
	dir := t.TempDir()

	local := filepath.Join(dir, "app.conf")
	if err := os.WriteFile(local, []byte("k=v"), 0644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(dir, "dest")
	if err := os.Mkdir(target, 0755); err != nil {
		t.Fatal(err)
	}
	if err := c.Upload(context.Background(), local, target, nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "app.conf")); err != nil {
		t.Errorf("directory target must receive the source file name: %v", err)
	}
}

func TestListSorted(t *testing.T) {
	c := newClient(t)
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := c.List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("List returned %d entries, want 3", len(files))
	}
	for i, want := range []string{"a.txt", "b.txt", "c.txt"} {
		if files[i].Name != want {
			t.Errorf("files[%d].Name = %q, want %q", i, files[i].Name, want)
		}
	}
}

func TestDelete(t *testing.T) {
	c := newClient(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "victim.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(path); err != nil {
		t.Fatalf("Delete file: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still exists after Delete")
	}

	empty := filepath.Join(dir, "emptydir")
	if err := os.Mkdir(empty, 0755); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(empty); err != nil {
		t.Fatalf("Delete empty directory: %v", err)
	}

	if err := c.Delete(filepath.Join(dir, "missing")); err == nil {
		t.Error("Delete of missing path must fail")
	}
}

func TestStat(t *testing.T) {
	c := newClient(t)
	path := filepath.Join(t.TempDir(), "sized.bin")
	if err := os.WriteFile(path, make([]byte, 1234), 0644); err != nil {
		t.Fatal(err)
	}
	size, err := c.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != 1234 {
		t.Errorf("Stat size = %d, want 1234", size)
	}
}
