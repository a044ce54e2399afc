// Command linebilling runs the LINE chatbot that sells content add-ons and
// keeps the Stripe subscription in line with them.
package main

func main() {
	Execute()
}
