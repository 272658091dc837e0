// geochat - command line client for map chats
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
