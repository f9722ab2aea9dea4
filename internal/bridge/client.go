// Package bridge implements sim.Session over the engine's
// remote-control socket: one length-prefixed JSON command frame out,
// one length-prefixed JSON response frame back, strictly in order.
package bridge

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"citypulse/server/internal/sim"
)

// CommandError is a per-command failure reported by the bridge. It is
// transient: the connection survives and the entity is simply omitted.
type CommandError struct {
	Cmd    string
	Reason string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("bridge command %s: %s", e.Cmd, e.Reason)
}

type request struct {
	Cmd  string         `json:"cmd"`
	Args map[string]any `json:"args,omitempty"`
}

type response struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Client is a sim.Session backed by a single stateful bridge
// connection. The mutex serializes frames; the tick loop is the only
// intended caller during a tick.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

// Dial connects to the bridge at addr.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s: %w", addr, err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// NewClient wraps an existing connection; used by tests.
func NewClient(conn net.Conn, timeout time.Duration) *Client {
	return &Client{conn: conn, timeout: timeout}
}

// call performs one synchronous command round-trip. Framing failures
// mark the session fatally lost; command-level failures are transient.
func (c *Client) call(cmd string, args map[string]any, out any) error {
	payload, err := json.Marshal(request{Cmd: cmd, Args: args})
	if err != nil {
		return &CommandError{Cmd: cmd, Reason: err.Error()}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		deadline := time.Now().Add(c.timeout)
		c.conn.SetDeadline(deadline)
	}
	if err := writeFrame(c.conn, payload); err != nil {
		return sim.Fatal(cmd, err)
	}
	data, err := readFrame(c.conn)
	if err != nil {
		return sim.Fatal(cmd, err)
	}

	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		// A garbled frame means the stream is out of sync for good.
		return sim.Fatal(cmd, err)
	}
	if !resp.OK {
		return &CommandError{Cmd: cmd, Reason: resp.Error}
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return &CommandError{Cmd: cmd, Reason: err.Error()}
		}
	}
	return nil
}

// Lifecycle.

func (c *Client) Start(args []string) error {
	return c.call("simulation.start", map[string]any{"args": args}, nil)
}

func (c *Client) Reload(args []string) error {
	return c.call("simulation.reload", map[string]any{"args": args}, nil)
}

func (c *Client) Step() error {
	return c.call("simulation.step", nil, nil)
}

func (c *Client) CurrentTime() (float64, error) {
	var t float64
	err := c.call("simulation.time", nil, &t)
	return t, err
}

// Close tells the bridge to shut the engine down, then closes the
// socket. Both are best-effort.
func (c *Client) Close() error {
	err := c.call("simulation.close", nil, nil)
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// Vehicles.

func (c *Client) VehicleIDs() ([]string, error) {
	var ids []string
	err := c.call("vehicle.list", nil, &ids)
	return ids, err
}

func (c *Client) VehiclePosition(id string) (sim.Point, error) {
	var pair [2]float64
	if err := c.call("vehicle.position", map[string]any{"id": id}, &pair); err != nil {
		return sim.Point{}, err
	}
	return sim.Point{X: pair[0], Y: pair[1]}, nil
}

func (c *Client) VehicleSpeed(id string) (float64, error) {
	var speed float64
	err := c.call("vehicle.speed", map[string]any{"id": id}, &speed)
	return speed, err
}

func (c *Client) VehicleAngle(id string) (float64, error) {
	var angle float64
	err := c.call("vehicle.angle", map[string]any{"id": id}, &angle)
	return angle, err
}

func (c *Client) VehicleTypeID(id string) (string, error) {
	var typeID string
	err := c.call("vehicle.type", map[string]any{"id": id}, &typeID)
	return typeID, err
}

func (c *Client) VehicleRoadID(id string) (string, error) {
	var road string
	err := c.call("vehicle.road", map[string]any{"id": id}, &road)
	return road, err
}

func (c *Client) VehicleRoute(id string) ([]string, error) {
	var route []string
	err := c.call("vehicle.route", map[string]any{"id": id}, &route)
	return route, err
}

type wireUpcomingSignal struct {
	ID       string  `json:"id"`
	Index    int     `json:"index"`
	Distance float64 `json:"distance"`
	State    string  `json:"state"`
}

func (c *Client) NextSignals(id string) ([]sim.UpcomingSignal, error) {
	var wire []wireUpcomingSignal
	if err := c.call("vehicle.next_signals", map[string]any{"id": id}, &wire); err != nil {
		return nil, err
	}
	upcoming := make([]sim.UpcomingSignal, 0, len(wire))
	for _, w := range wire {
		upcoming = append(upcoming, sim.UpcomingSignal{
			SignalID:  w.ID,
			LinkIndex: w.Index,
			Distance:  w.Distance,
			State:     w.State,
		})
	}
	return upcoming, nil
}

func (c *Client) RemoveVehicle(id string) error {
	return c.call("vehicle.remove", map[string]any{"id": id}, nil)
}

// Signals.

func (c *Client) SignalIDs() ([]string, error) {
	var ids []string
	err := c.call("trafficlight.list", nil, &ids)
	return ids, err
}

func (c *Client) SignalState(id string) (string, error) {
	var state string
	err := c.call("trafficlight.state", map[string]any{"id": id}, &state)
	return state, err
}

func (c *Client) SetSignalState(id string, state string) error {
	return c.call("trafficlight.set_state", map[string]any{"id": id, "state": state}, nil)
}

func (c *Client) ControlledLanes(id string) ([]string, error) {
	var lanes []string
	err := c.call("trafficlight.lanes", map[string]any{"id": id}, &lanes)
	return lanes, err
}

type wireProgram struct {
	ID     string      `json:"id"`
	Phases []wirePhase `json:"phases"`
}

type wirePhase struct {
	Duration float64 `json:"duration"`
	State    string  `json:"state"`
}

func (c *Client) ProgramLogics(id string) ([]sim.ProgramLogic, error) {
	var wire []wireProgram
	if err := c.call("trafficlight.programs", map[string]any{"id": id}, &wire); err != nil {
		return nil, err
	}
	logics := make([]sim.ProgramLogic, 0, len(wire))
	for _, w := range wire {
		logic := sim.ProgramLogic{ProgramID: w.ID, Phases: make([]sim.Phase, 0, len(w.Phases))}
		for _, p := range w.Phases {
			logic.Phases = append(logic.Phases, sim.Phase{Duration: p.Duration, State: p.State})
		}
		logics = append(logics, logic)
	}
	return logics, nil
}

func (c *Client) SetProgram(id string, programID string) error {
	return c.call("trafficlight.set_program", map[string]any{"id": id, "program": programID}, nil)
}

// Streets and lanes.

func (c *Client) EdgeIDs() ([]string, error) {
	var ids []string
	err := c.call("edge.list", nil, &ids)
	return ids, err
}

func (c *Client) EdgeName(id string) (string, error) {
	var name string
	err := c.call("edge.name", map[string]any{"id": id}, &name)
	return name, err
}

func (c *Client) EdgeShape(id string) ([]sim.Point, error) {
	return c.shape("edge.shape", id)
}

func (c *Client) LaneShape(id string) ([]sim.Point, error) {
	return c.shape("lane.shape", id)
}

func (c *Client) shape(cmd, id string) ([]sim.Point, error) {
	var pairs [][2]float64
	if err := c.call(cmd, map[string]any{"id": id}, &pairs); err != nil {
		return nil, err
	}
	points := make([]sim.Point, 0, len(pairs))
	for _, p := range pairs {
		points = append(points, sim.Point{X: p[0], Y: p[1]})
	}
	return points, nil
}

func (c *Client) LaneEdgeID(id string) (string, error) {
	var edge string
	err := c.call("lane.edge", map[string]any{"id": id}, &edge)
	return edge, err
}

func (c *Client) LaneAllowed(id string) ([]string, error) {
	var allowed []string
	err := c.call("lane.allowed", map[string]any{"id": id}, &allowed)
	return allowed, err
}

// Projection.

func (c *Client) ConvertGeo(p sim.Point) (sim.GeoPoint, error) {
	var pair [2]float64
	if err := c.call("simulation.convert_geo", map[string]any{"x": p.X, "y": p.Y}, &pair); err != nil {
		return sim.GeoPoint{}, err
	}
	return sim.GeoPoint{Lon: pair[0], Lat: pair[1]}, nil
}

var _ sim.Session = (*Client)(nil)
