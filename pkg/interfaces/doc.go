// Package interfaces 定义 overlay 的公共接口
//
// 组件之间只通过这里的窄接口交互，传输实现（内存、websocket）可以互换：
//   - transport.go  - 节点间、节点到 tracker、tracker 服务端三种传输
//   - eventbus.go   - 节点事件的发布/订阅
package interfaces
