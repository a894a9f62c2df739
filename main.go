// Command goclaw-sched is the scheduling and fork-execution core driving a
// single long-running agent conversation over Discord.
package main

import "github.com/nextlevelbuilder/goclaw-sched/cmd"

func main() {
	cmd.Execute()
}
