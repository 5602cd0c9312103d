package transport_test

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/LukaHietala/live/relay"
	"github.com/LukaHietala/live/transport"
)

var _ = Describe("transport", func() {
	Describe("Websocket", func() {
		It("bridges websocket messages onto the relay", func() {
			server := startRelay(relay.Options{})
			defer server.Close()

			ws, url := makeWebsocketServer(server)
			defer ws.Close()

			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			Expect(err).To(Succeed())
			defer conn.Close()

			err = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"handshake","name":"selain"}`+"\n"))
			Expect(err).To(Succeed())

			_, message, err := conn.ReadMessage()
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(message, "event").Str).To(Equal("handshake_response"))
			Expect(gjson.GetBytes(message, "name").Str).To(Equal("selain"))
			Expect(gjson.GetBytes(message, "is_host").Bool()).To(BeTrue())
		})

		It("shares the room with TCP clients", func() {
			server := startRelay(relay.Options{})
			defer server.Close()

			tcp := makeTCPServer(server)
			defer func() {
				Expect(tcp.Close()).To(Succeed())
			}()

			ws, url := makeWebsocketServer(server)
			defer ws.Close()

			host, hostReader := dialAndHandshake(tcp, "eka")
			defer host.Close()

			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			Expect(err).To(Succeed())
			defer conn.Close()

			err = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"handshake","name":"selain"}`+"\n"))
			Expect(err).To(Succeed())

			_, _, err = conn.ReadMessage()
			Expect(err).To(Succeed())

			line, err := readLine(hostReader)
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(line, "event").Str).To(Equal("user_joined"))
			Expect(gjson.GetBytes(line, "name").Str).To(Equal("selain"))

			// A broadcast crosses from the websocket side to the socket side
			err = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"cursor_move","position":[1,1]}`+"\n"))
			Expect(err).To(Succeed())

			line, err = readLine(hostReader)
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(line, "event").Str).To(Equal("cursor_move"))
			Expect(gjson.GetBytes(line, "name").Str).To(Equal("selain"))

			// And the other way around
			_, err = host.Write([]byte(`{"event":"update_content","content":"moi"}` + "\n"))
			Expect(err).To(Succeed())

			_, message, err := conn.ReadMessage()
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(message, "event").Str).To(Equal("update_content"))
			Expect(gjson.GetBytes(message, "from_id").Int()).To(Equal(int64(0)))
		})

		It("feeds split lines through the framing buffer", func() {
			server := startRelay(relay.Options{})
			defer server.Close()

			ws, url := makeWebsocketServer(server)
			defer ws.Close()

			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			Expect(err).To(Succeed())
			defer conn.Close()

			// One message holds half a line, the newline arrives later
			err = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"handshake",`))
			Expect(err).To(Succeed())

			err = conn.WriteMessage(websocket.TextMessage, []byte(`"name":"puolikas"}`+"\n"))
			Expect(err).To(Succeed())

			_, message, err := conn.ReadMessage()
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(message, "name").Str).To(Equal("puolikas"))
		})
	})
})

func makeWebsocketServer(server *relay.Server) (*httptest.Server, string) {
	log := zap.NewNop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		transport.ServeWebsocket(server, transport.DefaultSendQueueLength, log, w, r)
	})

	ts := httptest.NewServer(mux)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	return ts, url
}
