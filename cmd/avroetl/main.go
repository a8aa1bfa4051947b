package main

import "avro_etl/internal/cmd"

func main() {
	cmd.Execute()
}
