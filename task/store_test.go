package task_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nachoal/simple-batch-go/internal/validator"
	"github.com/nachoal/simple-batch-go/task"
)

var _ = Describe("Task", func() {
	It("accepts up to ten images", func() {
		t := task.Task{Name: "t", Images: make([]string, task.MaxImages)}
		Expect(t.Validate()).To(Succeed())
	})

	It("rejects more than ten images", func() {
		t := task.Task{Name: "t", Images: make([]string, task.MaxImages+1)}
		err := t.Validate()
		Expect(err).To(HaveOccurred())

		var fe *validator.FieldError
		Expect(errors.As(err, &fe)).To(BeTrue())
		Expect(fe.Field).To(Equal("images"))
	})

	It("requires a name until defaults are applied", func() {
		t := task.Task{Prompt: "p"}
		var fe *validator.FieldError
		Expect(errors.As(t.Validate(), &fe)).To(BeTrue())
		Expect(fe.Rule).To(Equal("required"))

		Expect(t.WithDefaults("m", "task_1").Validate()).To(Succeed())
	})

	It("fills missing model and name", func() {
		t := task.Task{Prompt: "p"}.WithDefaults("m", "task_1")
		Expect(t.Model).To(Equal("m"))
		Expect(t.Name).To(Equal("task_1"))

		kept := task.Task{Name: "n", Model: "x"}.WithDefaults("m", "task_1")
		Expect(kept.Model).To(Equal("x"))
		Expect(kept.Name).To(Equal("n"))
	})
})

var _ = Describe("Store", func() {
	var (
		dir   string
		store *task.Store
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		store = task.NewStore(dir)
	})

	writeImage := func(name string) {
		Expect(os.MkdirAll(store.ImagesDir(), 0755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(store.ImagesDir(), name), []byte("img"), 0644)).To(Succeed())
	}

	Describe("Save and Load", func() {
		It("round-trips the task list field for field", func() {
			tasks := []task.Task{
				{Name: "a", Prompt: "draw <cats> & dogs", Images: []string{"1.png", "/abs/2.jpg"}, Model: "m1"},
				{Name: "测试", Prompt: "请描述这张图片。", Images: []string{}, Model: "m2"},
			}
			Expect(store.Save(tasks)).To(Succeed())

			loaded, err := store.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(tasks))
		})

		It("keeps non-ASCII and HTML characters readable on disk", func() {
			Expect(store.Save([]task.Task{{Name: "测试", Prompt: "a <b>", Images: []string{}}})).To(Succeed())

			data, err := os.ReadFile(store.Path())
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("测试"))
			Expect(string(data)).To(ContainSubstring("a <b>"))
			Expect(string(data)).To(ContainSubstring("\n  {"))
		})

		It("treats a missing file as an empty list", func() {
			loaded, err := store.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeEmpty())
			Expect(store.Exists()).To(BeFalse())
		})

		It("reports malformed files", func() {
			Expect(os.WriteFile(store.Path(), []byte("{not json"), 0644)).To(Succeed())
			_, err := store.Load()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("LoadOrBootstrap", func() {
		It("writes the template when the file is absent", func() {
			tasks, err := store.LoadOrBootstrap()
			Expect(err).To(MatchError(task.ErrBootstrapped))
			Expect(tasks).To(BeNil())

			Expect(store.ImagesDir()).To(BeADirectory())
			loaded, err := store.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(task.ExampleTasks()))
			Expect(store.ExamplePath()).To(BeAnExistingFile())
		})

		It("leaves an existing example file alone", func() {
			Expect(os.MkdirAll(dir, 0755)).To(Succeed())
			Expect(os.WriteFile(store.ExamplePath(), []byte(`[]`), 0644)).To(Succeed())

			_, err := store.LoadOrBootstrap()
			Expect(err).To(MatchError(task.ErrBootstrapped))

			data, _ := os.ReadFile(store.ExamplePath())
			Expect(string(data)).To(Equal("[]"))
		})

		It("makes the example importable on a fresh setup", func() {
			_, err := store.LoadOrBootstrap()
			Expect(err).To(MatchError(task.ErrBootstrapped))
			Expect(store.Save(nil)).To(Succeed())

			n, err := store.ImportExample()
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(len(task.ExampleTasks())))

			loaded, _ := store.Load()
			Expect(loaded).To(Equal(task.ExampleTasks()))
		})

		It("writes the template when the file holds an empty array", func() {
			Expect(store.Save(nil)).To(Succeed())
			_, err := store.LoadOrBootstrap()
			Expect(err).To(MatchError(task.ErrBootstrapped))
		})

		It("writes the template when the file is zero bytes", func() {
			Expect(os.MkdirAll(filepath.Dir(store.Path()), 0755)).To(Succeed())
			Expect(os.WriteFile(store.Path(), nil, 0644)).To(Succeed())
			_, err := store.LoadOrBootstrap()
			Expect(err).To(MatchError(task.ErrBootstrapped))
		})

		It("returns existing tasks untouched", func() {
			tasks := []task.Task{{Name: "a", Prompt: "p", Images: []string{}, Model: "m"}}
			Expect(store.Save(tasks)).To(Succeed())

			loaded, err := store.LoadOrBootstrap()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(tasks))
		})

		It("fails on an unreadable file instead of overwriting it", func() {
			Expect(os.WriteFile(store.Path(), []byte("garbage"), 0644)).To(Succeed())
			_, err := store.LoadOrBootstrap()
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, task.ErrBootstrapped)).To(BeFalse())

			data, _ := os.ReadFile(store.Path())
			Expect(string(data)).To(Equal("garbage"))
		})
	})

	Describe("editing", func() {
		BeforeEach(func() {
			Expect(store.Add(
				task.Task{Name: "a", Images: []string{}},
				task.Task{Name: "b", Images: []string{}},
			)).To(Succeed())
		})

		It("updates by index", func() {
			Expect(store.Update(1, task.Task{Name: "B", Images: []string{"x.png"}})).To(Succeed())
			loaded, _ := store.Load()
			Expect(loaded[1].Name).To(Equal("B"))
			Expect(loaded[1].Images).To(Equal([]string{"x.png"}))
		})

		It("deletes by index", func() {
			removed, err := store.Delete(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed.Name).To(Equal("a"))

			loaded, _ := store.Load()
			Expect(loaded).To(HaveLen(1))
			Expect(loaded[0].Name).To(Equal("b"))
		})

		It("rejects out-of-range indexes", func() {
			Expect(store.Update(5, task.Task{})).To(MatchError(task.ErrIndexOutOfRange))
			_, err := store.Delete(-1)
			Expect(err).To(MatchError(task.ErrIndexOutOfRange))
		})
	})

	Describe("ImportExample", func() {
		It("appends the example tasks", func() {
			Expect(store.Add(task.Task{Name: "mine", Images: []string{}})).To(Succeed())
			Expect(os.WriteFile(store.ExamplePath(), []byte(`[{"name":"ex","prompt":"p","images":[],"model":"m"}]`), 0644)).To(Succeed())

			n, err := store.ImportExample()
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			loaded, _ := store.Load()
			Expect(loaded).To(HaveLen(2))
			Expect(loaded[1].Name).To(Equal("ex"))
		})

		It("falls back to the built-in examples when there is no example file", func() {
			n, err := store.ImportExample()
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(len(task.ExampleTasks())))

			loaded, _ := store.Load()
			Expect(loaded).To(Equal(task.ExampleTasks()))
		})

		It("fails on a malformed example file", func() {
			Expect(os.WriteFile(store.ExamplePath(), []byte("{oops"), 0644)).To(Succeed())
			_, err := store.ImportExample()
			Expect(err).To(HaveOccurred())
			Expect(store.Exists()).To(BeFalse())
		})
	})

	Describe("Backup", func() {
		It("copies the task file next to it", func() {
			Expect(store.Add(task.Task{Name: "a", Images: []string{}})).To(Succeed())

			path, err := store.Backup()
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Dir(path)).To(Equal(dir))
			Expect(strings.HasPrefix(filepath.Base(path), "tasks_backup_")).To(BeTrue())

			original, _ := os.ReadFile(store.Path())
			copied, _ := os.ReadFile(path)
			Expect(copied).To(Equal(original))
		})

		It("keeps the original modification time", func() {
			Expect(store.Add(task.Task{Name: "a", Images: []string{}})).To(Succeed())
			old := time.Date(2023, 3, 4, 5, 6, 7, 0, time.UTC)
			Expect(os.Chtimes(store.Path(), old, old)).To(Succeed())

			path, err := store.Backup()
			Expect(err).NotTo(HaveOccurred())

			info, err := os.Stat(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.ModTime().Equal(old)).To(BeTrue())
		})

		It("fails without a task file", func() {
			_, err := store.Backup()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("images", func() {
		It("lists only image files, sorted", func() {
			writeImage("b.JPG")
			writeImage("a.png")
			writeImage("notes.txt")

			images, err := store.ListImages()
			Expect(err).NotTo(HaveOccurred())
			Expect(images).To(Equal([]string{"a.png", "b.JPG"}))
		})

		It("bulk-creates one task per image", func() {
			writeImage("a.png")
			writeImage("b.webp")

			n, err := store.BulkCreate("cat", "make it cute", "m")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			loaded, _ := store.Load()
			Expect(loaded).To(Equal([]task.Task{
				{Name: "cat_1", Prompt: "make it cute", Images: []string{"a.png"}, Model: "m"},
				{Name: "cat_2", Prompt: "make it cute", Images: []string{"b.webp"}, Model: "m"},
			}))
		})

		It("creates nothing without images", func() {
			n, err := store.BulkCreate("cat", "p", "m")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
			Expect(store.Exists()).To(BeFalse())
		})
	})
})
