// Package controller defines the orchestrator driver boundary. The scaler
// owns replica intents and profiles; containers are owned by the driver
// behind the Controller interface. Concrete docker/kubernetes drivers
// register themselves via Register and are selected at startup.
package controller
