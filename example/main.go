package main

import (
	"bytes"
	"fmt"
	"io"

	"github.com/yonwoo9/go-logkv"
)

func show(name string, value []byte) {
	if value == nil {
		fmt.Printf("%s -> <null>\n", name)
		return
	}
	fmt.Printf("%s -> %s\n", name, value)
}

func streamSize(db *logkv.Engine, key string) string {
	vr, err := db.GetStream(key)
	if err != nil {
		return err.Error()
	}
	if vr == nil {
		return "<null>"
	}
	defer vr.Close()
	n, err := io.Copy(io.Discard, vr)
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("%d bytes", n)
}

func main() {
	const dir = "data-demo"

	db, err := logkv.Open(dir)
	if err != nil {
		panic(err)
	}
	if _, err := db.Recover(); err != nil {
		panic(err)
	}

	before, err := db.Get("hello")
	if err != nil {
		panic(err)
	}
	show("hello before", before)

	if err = db.Put("hello", []byte("world")); err != nil {
		fmt.Println(err)
		return
	}
	value, err := db.Get("hello")
	if err != nil {
		fmt.Println(err)
		return
	}
	show("hello", value)

	typed := logkv.NewTyped[string](db, logkv.StringSerializer{})
	if err = typed.Put("foo", "bar"); err != nil {
		fmt.Println(err)
		return
	}
	foo, _, err := typed.Get("foo")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("foo ->", foo)

	big := bytes.Repeat([]byte("x"), 2*1024*1024)
	if err = db.PutStream("big", bytes.NewReader(big)); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("big streamed size =", streamSize(db, "big"))
	bigValue, err := db.Get("big")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("big materialized size =", len(bigValue))
	db.Close()

	// reopen and replay the log
	db, err = logkv.Open(dir, logkv.RecoverOnOpen(true))
	if err != nil {
		panic(err)
	}
	value, _ = db.Get("hello")
	show("hello after recover", value)
	foo, _, _ = logkv.NewTyped[string](db, logkv.StringSerializer{}).Get("foo")
	fmt.Println("foo after recover ->", foo)
	fmt.Println("big after recover =", streamSize(db, "big"))

	if err = db.Delete("foo"); err != nil {
		fmt.Println(err)
		return
	}
	if err = db.Delete("big"); err != nil {
		fmt.Println(err)
		return
	}
	value, _ = db.Get("foo")
	show("foo after delete", value)
	fmt.Println("big after delete =", streamSize(db, "big"))
	db.Close()

	db, err = logkv.Open(dir, logkv.RecoverOnOpen(true))
	if err != nil {
		panic(err)
	}
	defer db.Close()
	value, _ = db.Get("foo")
	show("foo after reopen", value)
	fmt.Println("big after reopen =", streamSize(db, "big"))
}
