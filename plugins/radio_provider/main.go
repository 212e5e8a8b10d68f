package main

import (
	plugins "github.com/mantonx/soundcrowd/sdk"
)

func main() {
	plugins.Serve(NewRadioProvider(defaultStations))
}
