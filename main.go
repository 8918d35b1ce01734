package main

import (
	"github.com/shouni/go-photo-sketcher/cmd"
)

// main は cmd パッケージのコマンドを実行するだけなのだ。
func main() {
	cmd.Execute()
}
