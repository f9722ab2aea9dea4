package sim

import "strings"

// VehicleClass is the standardized display type of a simulated vehicle.
type VehicleClass string

const (
	VehicleCar        VehicleClass = "car"
	VehicleBus        VehicleClass = "bus"
	VehicleMotorcycle VehicleClass = "motorcycle"
	VehicleTruck      VehicleClass = "truck"
	VehicleAmbulance  VehicleClass = "ambulance"
)

// ClassifyVehicleType maps a raw engine type identifier onto a
// VehicleClass. Only ambulance-classified vehicles are eligible for
// signal preemption.
func ClassifyVehicleType(typeID string) VehicleClass {
	v := strings.ToLower(typeID)
	switch {
	case strings.Contains(v, "ambulance"), strings.Contains(v, "emergency"):
		return VehicleAmbulance
	case strings.Contains(v, "bus"):
		return VehicleBus
	case strings.Contains(v, "motorcycle"), strings.Contains(v, "bike"):
		return VehicleMotorcycle
	case strings.Contains(v, "truck"), strings.Contains(v, "trailer"):
		return VehicleTruck
	default:
		return VehicleCar
	}
}
