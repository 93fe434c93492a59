package main

import (
    "encoding/json"
    "fmt"
    "io/ioutil"
    "net/http"
    "os"
    "strconv"
    "strings"

    "github.com/olekukonko/tablewriter"

    "atomickv/server"
)

func init() {
    registerCommand("status", showStatus, statusUsage)
}

var statusUsage string =
`Usage: atomickv status -node=[base node URL]
`

func showStatus() {
    resp, err := http.Get(*optNodeURL + "/futures")

    if err != nil {
        fmt.Printf("Unable to contact node: %s\n", err.Error())

        return
    }

    defer resp.Body.Close()

    if resp.StatusCode != http.StatusOK {
        fmt.Printf("Node responded with status %d\n", resp.StatusCode)

        return
    }

    body, err := ioutil.ReadAll(resp.Body)

    if err != nil {
        fmt.Printf("Unable to read response: %s\n", err.Error())

        return
    }

    var statuses []server.FutureStatus

    if err := json.Unmarshal(body, &statuses); err != nil {
        fmt.Printf("Unable to parse response: %s\n", err.Error())

        return
    }

    table := tablewriter.NewWriter(os.Stdout)
    table.SetHeader([]string{ "Future", "Topology", "Keys", "Nodes", "Outstanding" })

    for _, status := range statuses {
        nodes := make([]string, 0, len(status.Nodes))

        for _, nodeID := range status.Nodes {
            nodes = append(nodes, strconv.FormatUint(nodeID, 10))
        }

        table.Append([]string{
            status.Version,
            strconv.FormatUint(status.TopologyVersion, 10),
            strings.Join(status.Keys, ","),
            strings.Join(nodes, ","),
            strconv.Itoa(status.OutstandingMappings),
        })
    }

    table.Render()
}
