package main

import (
	"os"

	"github.com/armadaproject/taskhive/cmd/taskhive/cmd"
	"github.com/armadaproject/taskhive/internal/common"
)

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}
