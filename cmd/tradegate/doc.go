// Package main is the tradegate binary: the web console and a terminal client
// for the same session and calculator workflow.
//
// Commands
//
//   - serve          Run the web console
//   - signup         Create an account
//   - login          Sign in with a password or an external provider
//   - logout         Sign out and forget the local session
//   - whoami         Show the signed-in user
//   - country        Show or set the home country
//   - calc           Calculate import duty for a shipment
//   - history        List recent calculations
package main
