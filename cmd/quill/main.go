package main

import "github.com/quillchat/quill/internal/cli"

func main() {
	cli.Execute()
}
