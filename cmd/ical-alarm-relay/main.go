package main

import "github.com/oshokin/ical-alarm-relay/cmd/ical-alarm-relay/cmd"

func main() {
	cmd.Execute()
}
