package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/fotad-io/fotad/cmd/fotad/app"
)

func main() {
	app.NewApp().Run()
}
