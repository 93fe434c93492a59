package main

import (
    "flag"
    "fmt"
    "os"
)

var optConfigFile *string
var optNodeURL *string

type command struct {
    run func()
    usage string
}

var commands map[string]command = make(map[string]command)

func registerCommand(name string, run func(), usage string) {
    commands[name] = command{ run: run, usage: usage }
}

func init() {
    optConfigFile = flag.String("conf", "", "Config file to use in the server")
    optNodeURL = flag.String("node", "http://localhost:9090", "Base URL of the node to query")
}

func usage() {
    fmt.Printf("Usage: atomickv <command> [arguments]\n\nCommands:\n")

    for name, cmd := range commands {
        fmt.Printf("  %s\n%s", name, cmd.usage)
    }
}

func main() {
    if len(os.Args) < 2 {
        usage()

        return
    }

    commandName := os.Args[1]
    cmd, ok := commands[commandName]

    if !ok {
        fmt.Printf("%s is not a valid command\n\n", commandName)
        usage()

        return
    }

    os.Args = append(os.Args[:1], os.Args[2:]...)
    flag.Parse()

    cmd.run()
}
