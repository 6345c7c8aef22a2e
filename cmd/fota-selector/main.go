package main

import (
	"github.com/fotad-io/fotad/cmd/fota-selector/app"
)

func main() {
	app.NewApp().Run()
}
