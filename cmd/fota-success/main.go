package main

import (
	"github.com/fotad-io/fotad/cmd/fota-success/app"
)

func main() {
	app.NewApp().Run()
}
